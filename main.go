package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"featurestore/database"
	"featurestore/features"
	"featurestore/geotag"
	"featurestore/imagerecord"
	"featurestore/logging"
	"featurestore/project"
	"featurestore/signalhandler"
	"featurestore/types"
	"featurestore/utils"

	"gocv.io/x/gocv"
)

func main() {
	// Set up proper signal handling
	signalhandler.SetupHandler()

	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	args := utils.ParseArguments()
	command, hasCommand := args["command"]

	dbPath := utils.GetDefaultDatabasePath()
	if customDB, ok := args["database"]; ok && customDB != "" {
		dbPath = customDB
	} else if customDB, ok := args["db"]; ok && customDB != "" {
		// Allow --db as an alias for --database
		dbPath = customDB
	}

	// Setup debug logging if enabled
	debugMode := utils.GetBool(args, "debug")
	if debugMode {
		logPath := "featurestore.log"
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
			signalhandler.OnShutdown(logging.CloseLogger)
		}
	}
	defer logging.CloseLogger()

	if !hasCommand || args["dir"] == "" {
		utils.PrintUsage()
		os.Exit(1)
	}
	needsImage := map[string]bool{"inspect": true, "pose": true, "show": true, "render": true}
	if needsImage[command] && args["image"] == "" {
		fmt.Println("Error: Missing image name (use --image=NAME)")
		os.Exit(1)
	}

	dir := args["dir"]
	if info, err := os.Stat(dir); err != nil {
		log.Fatalf("Cannot access directory: %s (%v)", dir, err)
	} else if !info.IsDir() {
		log.Fatalf("Path is not a directory: %s", dir)
	}

	startTime := time.Now()
	var err error
	switch command {
	case "inspect":
		err = handleInspectCommand(args, dir, dbPath)
	case "detect":
		err = handleDetectCommand(args, dir, dbPath)
	case "match":
		err = handleMatchCommand(args, dir, dbPath)
	case "validate":
		err = handleValidateCommand(args, dir)
	case "summary":
		err = handleSummaryCommand(args, dir)
	case "pose":
		err = handlePoseCommand(args, dir, dbPath)
	case "geotag":
		err = handleGeotagCommand(args, dir, dbPath)
	case "show", "render":
		err = handleDrawCommand(command, args, dir)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		logging.CloseLogger()
		log.Fatalf("Error running %s: %v", command, err)
	}
	fmt.Printf("Total execution time: %v\n", time.Since(startTime))
}

func projectOptions(args map[string]string) project.Options {
	workers, err := utils.GetInt(args, "workers", signalhandler.GetOptimalProcs())
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return project.Options{Workers: workers, Progress: os.Stdout}
}

// openProject reports sidecar failures but keeps going with the images that loaded
func openProject(args map[string]string, dir string) (*project.Project, error) {
	p, err := project.Open(dir, projectOptions(args))
	if p == nil {
		return nil, err
	}
	if err != nil {
		fmt.Printf("Warning: some feature files could not be read:\n%v\n", err)
	}
	fmt.Printf("Project %s: %d images\n", dir, p.Len())
	return p, nil
}

// openCatalog initializes the catalog with the same retry policy as long scans
func openCatalog(dbPath string) (*sql.DB, error) {
	var db *sql.DB
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(dbPath)
		if err == nil {
			return db, nil
		}
		if i < maxRetries-1 {
			log.Printf("Error initializing database (attempt %d/%d): %v - retrying...", i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, fmt.Errorf("error initializing database after %d attempts: %v", maxRetries, err)
}

func syncCatalog(p *project.Project, dbPath string) error {
	db, err := openCatalog(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// keep poses recorded earlier
	if err := p.ApplyCatalog(db); err != nil {
		return err
	}
	if err := p.SyncCatalog(db); err != nil {
		return err
	}
	abs, _ := filepath.Abs(p.Dir())
	stats, err := database.GetCatalogStats(db, abs)
	if err == nil && stats != nil {
		fmt.Printf("\nCatalog %s:\n", dbPath)
		fmt.Printf("- Images: %d (%d geotagged)\n", stats.TotalImages, stats.GeotaggedCount)
		fmt.Printf("- Keypoints: %d\n", stats.TotalKeypoints)
		fmt.Printf("- Matched pairs: %d\n", stats.TotalPairs)
	}
	return nil
}

func loadRecord(dir, name string) (*imagerecord.ImageRecord, error) {
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		return nil, fmt.Errorf("image does not exist: %s", filepath.Join(dir, name))
	}
	r := &imagerecord.ImageRecord{}
	if err := r.Load(dir, name); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return r, nil
}

func handleInspectCommand(args map[string]string, dir, dbPath string) error {
	r, err := loadRecord(dir, args["image"])
	if err != nil {
		return err
	}
	defer r.Close()

	if _, statErr := os.Stat(dbPath); statErr == nil {
		db, err := database.OpenDatabase(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		abs, _ := filepath.Abs(dir)
		if info, found, err := database.LoadImage(db, abs, r.Name()); err != nil {
			return err
		} else if found {
			r.SetPose(info.Pose)
			r.SetBias(info.Bias)
		}
	}

	summary, err := project.Summarize(r)
	if err != nil {
		return err
	}

	fmt.Printf("Image:        %s\n", r.ImageFile())
	fmt.Printf("File root:    %s\n", r.FileRoot())
	for _, res := range []imagerecord.Resource{imagerecord.ResourceKeypoints, imagerecord.ResourceDescriptors, imagerecord.ResourceMatches} {
		fmt.Printf("%-13s %s\n", res.String()+":", r.State(res))
	}
	fmt.Printf("Keypoints:    %d (response %.4g±%.4g)\n", summary.Keypoints, summary.ResponseMean, summary.ResponseStdDev)
	fmt.Printf("Descriptors:  %d\n", summary.Descriptors)
	fmt.Printf("Match pairs:  %d\n", summary.MatchedPairs)
	pose := r.Pose()
	fmt.Printf("Pose:         lon=%.7f lat=%.7f msl=%.2f roll=%.2f pitch=%.2f yaw=%.2f\n",
		pose.Lon, pose.Lat, pose.MSL, pose.Roll, pose.Pitch, pose.Yaw)
	bias := r.Bias()
	fmt.Printf("Bias:         yaw=%.3f roll=%.3f pitch=%.3f alt=%.3f\n", bias.Yaw, bias.Roll, bias.Pitch, bias.Alt)
	if err := r.CheckCorrespondence(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return nil
}

func handleDetectCommand(args map[string]string, dir, dbPath string) error {
	maxFeatures, err := utils.GetInt(args, "features", features.DefaultMaxFeatures)
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	p, err := openProject(args, dir)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("Detecting up to %d features per image...\n", maxFeatures)
	detectErr := p.Detect(func() features.Detector { return features.NewORBDetector(maxFeatures) })
	if detectErr != nil {
		fmt.Printf("Warning: detection failed for some images:\n%v\n", detectErr)
	}
	return syncCatalog(p, dbPath)
}

func handleMatchCommand(args map[string]string, dir, dbPath string) error {
	ratio := features.DefaultRatio
	if ratioStr, ok := args["ratio"]; ok {
		parsed, err := utils.ParseRatio(ratioStr)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		ratio = parsed
	}

	p, err := openProject(args, dir)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Match(func() features.Matcher { return features.NewBFMatcher(ratio) }); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return syncCatalog(p, dbPath)
}

func handleValidateCommand(args map[string]string, dir string) error {
	p, err := openProject(args, dir)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Validate(); err != nil {
		return err
	}
	fmt.Println("All match lists are consistent.")
	return nil
}

func handleSummaryCommand(args map[string]string, dir string) error {
	p, err := openProject(args, dir)
	if err != nil {
		return err
	}
	defer p.Close()

	summaries, err := p.Summary()
	if err != nil {
		return err
	}
	project.PrintSummary(os.Stdout, summaries)
	return nil
}

func handlePoseCommand(args map[string]string, dir, dbPath string) error {
	r, err := loadRecord(dir, args["image"])
	if err != nil {
		return err
	}
	defer r.Close()

	db, err := openCatalog(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	abs, _ := filepath.Abs(dir)
	info, found, err := database.LoadImage(db, abs, r.Name())
	if err != nil {
		return err
	}
	pose := types.Pose{}
	if found {
		pose = info.Pose
		r.SetBias(info.Bias)
	}

	fields := []struct {
		flag string
		dst  *float64
	}{
		{"lon", &pose.Lon}, {"lat", &pose.Lat}, {"msl", &pose.MSL},
		{"roll", &pose.Roll}, {"pitch", &pose.Pitch}, {"yaw", &pose.Yaw},
	}
	for _, f := range fields {
		v, err := utils.GetFloat(args, f.flag, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	r.SetPose(pose)
	if err := database.StoreImage(db, project.Info(abs, r)); err != nil {
		return err
	}
	fmt.Printf("Pose of %s set to lon=%.7f lat=%.7f msl=%.2f roll=%.2f pitch=%.2f yaw=%.2f\n",
		r.Name(), pose.Lon, pose.Lat, pose.MSL, pose.Roll, pose.Pitch, pose.Yaw)
	return nil
}

func handleGeotagCommand(args map[string]string, dir, dbPath string) error {
	p, err := openProject(args, dir)
	if err != nil {
		return err
	}
	defer p.Close()

	db, err := openCatalog(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	// keep bias recorded earlier
	if err := p.ApplyCatalog(db); err != nil {
		return err
	}

	reader, err := geotag.NewReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	paths := make([]string, p.Len())
	for i := range paths {
		paths[i] = p.Record(i).ImageFile()
	}

	tagged := 0
	for i, result := range reader.ReadPose(paths...) {
		if result.Err != nil || !result.HasPosition {
			continue
		}
		p.Record(i).SetPose(result.Pose)
		tagged++
	}
	fmt.Printf("Geotagged %d of %d images\n", tagged, p.Len())
	return p.SyncCatalog(db)
}

func handleDrawCommand(command string, args map[string]string, dir string) error {
	r, err := loadRecord(dir, args["image"])
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.LoadImage(); err != nil {
		return err
	}
	style := imagerecord.DrawLocations
	if utils.GetBool(args, "rich") {
		style = imagerecord.DrawRich
	}

	if command == "show" {
		return r.ShowKeypoints(style)
	}

	out := args["out"]
	if out == "" {
		return fmt.Errorf("missing output path (use --out=PATH)")
	}
	canvas, err := r.RenderKeypoints(style)
	if err != nil {
		return err
	}
	defer canvas.Close()
	if !gocv.IMWrite(out, canvas) {
		return fmt.Errorf("failed to write %s", out)
	}
	fmt.Printf("Wrote %d keypoints over %s to %s\n", r.KeypointCount(), r.Name(), out)
	return nil
}
