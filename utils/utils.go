package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"featurestore/imageprocessor"
)

// Commands lists the sub-commands understood by the CLI
var Commands = []string{"inspect", "detect", "match", "validate", "pose", "geotag", "summary", "show", "render"}

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	return ParseArgs(os.Args[1:])
}

// ParseArgs converts argv, without the program name, into a map of flags and
// values. The first known sub-command is stored under "command".
func ParseArgs(argv []string) map[string]string {
	args := make(map[string]string)

	commandIndex := slices.IndexFunc(argv, func(arg string) bool {
		return slices.Contains(Commands, arg)
	})
	if commandIndex >= 0 {
		args["command"] = argv[commandIndex]
	}

	for i := 0; i < len(argv); i++ {
		if i == commandIndex {
			continue
		}

		arg := argv[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// A flag followed by another flag, the command or nothing is boolean
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || i+1 == commandIndex {
				args[flagName] = "true"
			} else {
				args[flagName] = argv[i+1]
				i++
			}
		}
	}

	return args
}

// GetFloat returns the flag as a float, def when absent
func GetFloat(args map[string]string, name string, def float64) (float64, error) {
	raw, ok := args[name]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("invalid value for --%s: '%s'", name, raw)
	}
	return v, nil
}

// GetInt returns the flag as an int, def when absent
func GetInt(args map[string]string, name string, def int) (int, error) {
	raw, ok := args[name]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("invalid value for --%s: '%s'", name, raw)
	}
	return v, nil
}

// GetBool reports whether a boolean flag was given
func GetBool(args map[string]string, name string) bool {
	raw, ok := args[name]
	if !ok {
		return false
	}
	v, err := strconv.ParseBool(raw)
	return err != nil || v
}

// ParseRatio parses and validates a ratio test threshold
func ParseRatio(ratioStr string) (float64, error) {
	ratio, err := strconv.ParseFloat(ratioStr, 64)
	if err != nil || ratio <= 0 || ratio > 1 {
		return 0.75, fmt.Errorf("Invalid ratio value '%s', using default (0.75)", ratioStr)
	}
	return ratio, nil
}

// GetDefaultDatabasePath returns the default path for the catalog file
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "featurestore.db"
	}
	return filepath.Join(filepath.Dir(exePath), "featurestore.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s inspect  --dir=PATH --image=NAME [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s detect   --dir=PATH [--features=N] [--workers=N] [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s match    --dir=PATH [--ratio=VALUE] [--workers=N] [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s validate --dir=PATH\n", os.Args[0])
	fmt.Printf("  %s summary  --dir=PATH\n", os.Args[0])
	fmt.Printf("  %s pose     --dir=PATH --image=NAME [--lon=X] [--lat=X] [--msl=X] [--roll=X] [--pitch=X] [--yaw=X] [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s geotag   --dir=PATH [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s show     --dir=PATH --image=NAME [--rich]\n", os.Args[0])
	fmt.Printf("  %s render   --dir=PATH --image=NAME --out=PATH [--rich]\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --dir         : Survey directory holding images and feature files\n")
	fmt.Printf("  --image       : Image file name inside --dir\n")
	fmt.Printf("  --database    : Path to catalog file (default: %s)\n", GetDefaultDatabasePath())
	fmt.Printf("  --features    : Maximum keypoints per image (default: 2000)\n")
	fmt.Printf("  --ratio       : Ratio test threshold for matching (0.0-1.0, default: 0.75)\n")
	fmt.Printf("  --workers     : Worker goroutines (default: 3/4 of the CPUs)\n")
	fmt.Printf("  --rich        : Draw keypoint size and orientation\n")
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: featurestore.log)\n")
	fmt.Printf("\nSurvey image extensions: %s\n", strings.Join(imageprocessor.GetSupportedExtensions(), " "))
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s detect --dir=/surveys/field7 --features=3000 --debug\n", os.Args[0])
	fmt.Printf("  %s match --dir=/surveys/field7 --ratio=0.8\n", os.Args[0])
}
