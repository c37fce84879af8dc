package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/datachat/internal/dataset"
	"github.com/KaramelBytes/datachat/internal/ingest"
	"github.com/KaramelBytes/datachat/internal/utils"
)

// Files exchanged with an isolated child through the request directory.
const (
	jobFile    = "job.json"
	dataFile   = "data.csv"
	codeFile   = "code.go"
	resultFile = "result.json"
)

// job carries execution limits to the child.
type job struct {
	TableName      string        `json:"table_name"`
	Timeout        time.Duration `json:"timeout"`
	MaxOutputBytes int           `json:"max_output_bytes"`
}

// writeJob lays out code, a copy of t and limits in dir for RunJob.
func writeJob(dir, code string, t *dataset.Table, opts Options) error {
	f, err := os.Create(filepath.Join(dir, dataFile))
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write data file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close data file: %w", err)
	}
	if err := utils.SafeWriteFile(filepath.Join(dir, codeFile), []byte(code), 0o644); err != nil {
		return fmt.Errorf("write code file: %w", err)
	}
	b, err := json.Marshal(job{TableName: t.Name, Timeout: opts.Timeout, MaxOutputBytes: opts.MaxOutputBytes})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return utils.SafeWriteFile(filepath.Join(dir, jobFile), b, 0o644)
}

// RunJob is the child side of Process and Docker: it loads the job in dir,
// runs it with the interpreter and writes result.json. The plot, if any,
// stays in dir.
func RunJob(ctx context.Context, dir string) error {
	raw, err := os.ReadFile(filepath.Join(dir, jobFile))
	if err != nil {
		return fmt.Errorf("read job: %w", err)
	}
	var j job
	if err := json.Unmarshal(raw, &j); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	code, err := os.ReadFile(filepath.Join(dir, codeFile))
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}
	f, err := os.Open(filepath.Join(dir, dataFile))
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	t, err := ingest.ReadCSV(f, j.TableName, ',')
	f.Close()
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	res := RunInDir(ctx, string(code), t, dir, j.Timeout, j.MaxOutputBytes)
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return utils.SafeWriteFile(filepath.Join(dir, resultFile), b, 0o644)
}

// collectResult reads what a child left in dir.
func collectResult(dir string) (Result, error) {
	raw, err := os.ReadFile(filepath.Join(dir, resultFile))
	if err != nil {
		return Result{}, fmt.Errorf("read result: %w", err)
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	if r.Outcome != Success {
		discardArtifact(dir)
		return Result{Outcome: Failure, Reason: r.Reason}, nil
	}
	img, err := readArtifact(dir)
	if err != nil {
		return Result{}, fmt.Errorf("read plot: %w", err)
	}
	r.Image = img
	return r, nil
}
