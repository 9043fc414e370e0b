package main

import (
	"context"
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"examguard/internal/config"
	"examguard/internal/database"
)

var (
	configFile = kingpin.Flag("config", "Path to the YAML config file").Short('c').Envar("EXAMGUARD_CONFIG_FILE").String()

	roomsCmd = kingpin.Command("rooms", "List exam rooms")

	sessionsCmd  = kingpin.Command("sessions", "List the sessions of one exam room")
	sessionsRoom = sessionsCmd.Flag("room", "Room code").Required().String()

	logsCmd       = kingpin.Command("logs", "Print a candidate's violation log")
	logsCandidate = logsCmd.Flag("candidate", "Candidate name").Required().String()

	assessmentsCmd = kingpin.Command("assessments", "List the assessment catalog stored in the database")

	checkCmd = kingpin.Command("check", "Check database health and unsealed sessions")
)

func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("1.0")
	kingpin.CommandLine.Help = "examguardctl - exam room reports"
	command := kingpin.Parse()

	loader, err := config.Load(*configFile)
	if err != nil {
		fail(err)
	}
	db, err := database.NewManager(&loader.Config().Database, zap.NewNop())
	if err != nil {
		fail(err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r := &reporter{db: db, out: os.Stdout}
	switch command {
	case roomsCmd.FullCommand():
		err = r.rooms(ctx)
	case sessionsCmd.FullCommand():
		err = r.sessions(ctx, *sessionsRoom)
	case logsCmd.FullCommand():
		err = r.logs(ctx, *logsCandidate)
	case assessmentsCmd.FullCommand():
		err = r.assessments(ctx)
	case checkCmd.FullCommand():
		err = r.check(ctx)
	}
	if err != nil {
		cancel()
		_ = db.Close()
		fail(err)
	}
}

func fail(err error) {
	color.Red("examguardctl: %v", err)
	os.Exit(1)
}
