package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"runtime"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/siglalabs/sigla/pkg/config"
)

// runDoctorCmd implements `sigla doctor`, the configuration and environment
// check.
//
// Exit codes:
//
//	0 = no check failed (warnings allowed)
//	1 = one or more checks failed
func runDoctorCmd(cfg *config.Config, stdout io.Writer) int {
	type checkResult struct {
		Name   string
		Status string // "ok", "warn", "fail"
		Detail string
	}

	var results []checkResult
	allOK := true

	results = append(results, checkResult{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	switch cfg.StoreDriver {
	case "memory":
		results = append(results, checkResult{
			Name:   "store_driver",
			Status: "warn",
			Detail: "memory store holds no data between runs",
		})
	case "sqlite":
		results = append(results, checkResult{
			Name:   "store_driver",
			Status: "ok",
			Detail: fmt.Sprintf("sqlite at %s", cfg.SQLitePath),
		})
	case "postgres":
		status, detail := "ok", "postgres"
		if cfg.DatabaseURL == "" {
			status, detail = "fail", "DATABASE_URL not set"
			allOK = false
		}
		results = append(results, checkResult{Name: "store_driver", Status: status, Detail: detail})
	default:
		results = append(results, checkResult{
			Name:   "store_driver",
			Status: "fail",
			Detail: fmt.Sprintf("unknown driver %q", cfg.StoreDriver),
		})
		allOK = false
	}

	profiles, err := config.LoadAllProfiles(cfg.ProfilesDir)
	switch {
	case err != nil:
		results = append(results, checkResult{
			Name:   "profiles",
			Status: "fail",
			Detail: err.Error(),
		})
		allOK = false
	case len(profiles) == 0:
		results = append(results, checkResult{
			Name:   "profiles",
			Status: "warn",
			Detail: fmt.Sprintf("no cycle profiles found in %s", cfg.ProfilesDir),
		})
	default:
		results = append(results, checkResult{
			Name:   "profiles",
			Status: "ok",
			Detail: fmt.Sprintf("%d cycle profile(s)", len(profiles)),
		})
	}

	if _, err := os.Stat(cfg.DataDir); err != nil {
		results = append(results, checkResult{
			Name:   "data_dir",
			Status: "warn",
			Detail: fmt.Sprintf("%s does not exist (created on first use)", cfg.DataDir),
		})
	} else {
		results = append(results, checkResult{Name: "data_dir", Status: "ok", Detail: cfg.DataDir})
	}

	if cfg.RedisAddr == "" {
		results = append(results, checkResult{
			Name:   "redis",
			Status: "warn",
			Detail: "REDIS_ADDR not set; draft locks stay in-process",
		})
	} else {
		results = append(results, checkResult{Name: "redis", Status: "ok", Detail: cfg.RedisAddr})
	}

	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, headColor.Sprint("sigla doctor"))
	fmt.Fprintln(stdout, "────────────")
	for _, r := range results {
		label := passColor.Sprint("OK  ")
		switch r.Status {
		case "warn":
			label = condColor.Sprint("WARN")
		case "fail":
			label = failColor.Sprint("FAIL")
		}
		fmt.Fprintf(stdout, "  %s  %-14s %s\n", label, r.Name, dimColor.Sprint(r.Detail))
	}

	fmt.Fprintln(stdout, "")
	table := tablewriter.NewWriter(stdout)
	table.Header([]string{"Setting", "Value"})
	_ = table.Append([]string{"LOG_LEVEL", cfg.LogLevel})
	_ = table.Append([]string{"STORE_DRIVER", cfg.StoreDriver})
	_ = table.Append([]string{"DATABASE_URL", redactURL(cfg.DatabaseURL)})
	_ = table.Append([]string{"SQLITE_PATH", cfg.SQLitePath})
	_ = table.Append([]string{"DATA_DIR", cfg.DataDir})
	_ = table.Append([]string{"REDIS_ADDR", cfg.RedisAddr})
	_ = table.Append([]string{"PROFILES_DIR", cfg.ProfilesDir})
	_ = table.Append([]string{"SWEEP_BATCH_SIZE", strconv.Itoa(cfg.SweepBatchSize)})
	_ = table.Append([]string{"SWEEP_REMINDER_LEAD_HOURS", strconv.Itoa(cfg.SweepReminderLead)})
	_ = table.Append([]string{"SWEEP_PER_SECOND", strconv.FormatFloat(cfg.SweepPerSecond, 'f', -1, 64)})
	_ = table.Render()

	if allOK {
		fmt.Fprintln(stdout, passColor.Sprint("All checks passed."))
		return 0
	}
	return 1
}

// redactURL masks any password embedded in a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
