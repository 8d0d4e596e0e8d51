package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/doccache-backend/internal/app"
	"github.com/yungbote/doccache-backend/internal/jobs/expiry"
)

type workspaceList []string

func (l *workspaceList) String() string { return strings.Join(*l, ",") }
func (l *workspaceList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

// One-shot expiry sweep. Prints the run report as JSON and exits non-zero when
// any workspace failed.
func main() {
	var workspaces workspaceList
	var batchSize int
	var sweepCache bool
	flag.Var(&workspaces, "workspace", "workspace to clean (repeatable; default: all configured)")
	flag.IntVar(&batchSize, "batch-size", 0, "documents per delete batch (0 uses the default)")
	flag.BoolVar(&sweepCache, "cache", true, "also delete expired search-cache rows")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	mgr := application.Services.Expiration
	var sweeper expiry.Sweeper = mgr
	if len(workspaces) > 0 {
		for _, ws := range workspaces {
			if _, err := mgr.ValidateWorkspace(ws); err != nil {
				fmt.Printf("%v\n", err)
				os.Exit(2)
			}
		}
		sweeper = fixedWorkspaces{Sweeper: mgr, list: workspaces}
	}

	s, err := expiry.NewScheduler(sweeper, expiry.Config{
		BatchSize:  batchSize,
		SweepCache: sweepCache && application.Cfg.CacheBackend == app.CacheBackendPostgres,
	}, application.Log)
	if err != nil {
		fmt.Printf("init sweep: %v\n", err)
		os.Exit(1)
	}

	rep := s.RunOnce(context.Background())
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
	if rep.Failed() {
		os.Exit(1)
	}
}

type fixedWorkspaces struct {
	expiry.Sweeper
	list []string
}

func (f fixedWorkspaces) Workspaces() []string { return f.list }
