// Command kinemetric replays a recorded keypoint capture (JSONL, one frame
// per line) through a scoring session and stores the result. The live
// capture path feeds the same engine in-process; this tool exists for
// offline analysis and for re-scoring captures after configuration changes.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fieldlab-data/kinemetric/internal/engine"
	"github.com/fieldlab-data/kinemetric/internal/pose"
	"github.com/fieldlab-data/kinemetric/internal/profiles"
	"github.com/fieldlab-data/kinemetric/internal/store"
)

func main() {
	var (
		framesPath = flag.String("frames", "", "path to JSONL keypoint capture (required)")
		discipline = flag.String("discipline", "broad_jump", "discipline profile: broad_jump, vertical_jump, sit_ups, sit_and_reach, medicine_ball")
		dbPath     = flag.String("db", "kinemetric.db", "path to results database")
		tuningPath = flag.String("tuning", "", "optional JSON tuning overrides for the profile")
		calibPx    = flag.Float64("calib-px", 0, "reference measurement in pixels (for fiducial / reference-object calibration)")
		calibM     = flag.Float64("calib-m", 0, "reference measurement in metres (for fiducial / reference-object calibration)")
	)
	flag.Parse()

	if *framesPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := profiles.ByName(*discipline)
	if err != nil {
		log.Fatalf("kinemetric: %v", err)
	}

	if *tuningPath != "" {
		tuning, err := LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("kinemetric: %v", err)
		}
		tuning.Apply(&cfg)
	}

	session, err := engine.NewSession(cfg)
	if err != nil {
		log.Fatalf("kinemetric: %v", err)
	}

	f, err := os.Open(*framesPath)
	if err != nil {
		log.Fatalf("kinemetric: %v", err)
	}
	defer f.Close()

	if err := replay(session, cfg, f, *calibPx, *calibM); err != nil {
		log.Fatalf("kinemetric: %v", err)
	}

	if _, err := session.EndTrial(); err != nil && !errors.Is(err, engine.ErrInsufficientSignal) {
		log.Fatalf("kinemetric: %v", err)
	}
	result := session.Finalize()
	printResult(result)

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("kinemetric: %v", err)
	}
	defer db.Close()
	if err := db.SaveSession(result); err != nil {
		log.Fatalf("kinemetric: %v", err)
	}
	fmt.Printf("saved session %s to %s\n", result.SessionID, *dbPath)
}

func replay(session *engine.Session, cfg engine.Config, f *os.File, calibPx, calibM float64) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	externalCalib := cfg.Calibration.JointA == ""
	calibrated := false

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame pose.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return fmt.Errorf("bad frame: %w", err)
		}

		// Marker-based calibration is measured upstream of the engine;
		// replay it as one sample per frame until the scale converges.
		if externalCalib && !calibrated {
			if calibPx <= 0 || calibM <= 0 {
				return fmt.Errorf("discipline %s needs -calib-px and -calib-m", cfg.Discipline)
			}
			if err := session.AddCalibrationSample(calibPx, calibM, frame.Timestamp); err != nil {
				return err
			}
		}

		res, err := session.Step(&frame)
		if err != nil {
			return err
		}
		if _, ok := session.Calibration(); ok {
			calibrated = true
		}
		if res.Event != nil && res.Validation != nil && !res.Validation.Accepted {
			log.Printf("frame %d: event %s rejected: %v", frame.Index, res.Event.Kind, res.Validation.Reasons)
		}
		if res.Trial != nil {
			log.Printf("frame %d: trial recorded: %.3f %s (confidence %.2f)",
				frame.Index, res.Trial.Value, res.Trial.Unit, res.Trial.Confidence)
		}
	}
	return scanner.Err()
}

func printResult(res engine.SessionResult) {
	fmt.Printf("session %s (%s)\n", res.SessionID, res.Discipline)
	for i, tm := range res.Trials {
		status := "ok"
		if !tm.Accepted {
			status = fmt.Sprintf("rejected: %v", tm.Violations)
		}
		fmt.Printf("  trial %d: %.3f %s (confidence %.2f, %s)\n", i+1, tm.Value, tm.Unit, tm.Confidence, status)
	}
	if res.Best == nil {
		fmt.Println("  no valid trials")
		return
	}
	fmt.Printf("  best: %.3f %s  mean: %.3f %s  valid: %d\n",
		*res.Best, res.Unit, *res.Mean, res.Unit, res.CountValid)
}
