package cmd

import (
	"github.com/relex/framesink/takedir"
	"github.com/relex/gotils/logger"
)

type inspectCommandState struct {
	Strict bool `help:"Fail if missing frames cannot be explained by missed or failed saves"`
}

var inspectCmd inspectCommandState

func (cmd *inspectCommandState) run(args []string) {
	if len(args) == 0 {
		logger.Fatal("no directory specified")
	}
	failed := 0
	for _, root := range args {
		dirs, err := takedir.FindWorkerDirs(root)
		if err != nil {
			logger.Fatalf("failed to scan %s: %s", root, err.Error())
		}
		for _, dir := range dirs {
			report, ierr := takedir.Inspect(dir)
			if ierr != nil {
				logger.Errorf("failed to inspect %s: %s", dir, ierr.Error())
				failed++
				continue
			}
			switch {
			case !report.OK():
				logger.Errorf("bad: %s", report)
				failed++
			case !report.ExplainedMissing():
				logger.Warnf("unexplained missing frames: %s first=%v", report, report.Missing)
				if cmd.Strict {
					failed++
				}
			default:
				logger.Infof("ok: %s labels=%v", report, report.Labels)
			}
		}
	}
	if failed > 0 {
		logger.Fatalf("%d directories failed inspection", failed)
	}
}
