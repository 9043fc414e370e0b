package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"examguard/pkg/types"
)

// store is the slice of the database the reports read
type store interface {
	ListRooms(ctx context.Context) ([]*types.ExamRoom, error)
	ListSessions(ctx context.Context, roomID string) ([]*types.ExamSession, error)
	FindSessionByCandidate(ctx context.Context, candidateName string) (*types.ExamSession, error)
	ListAssessments(ctx context.Context) ([]*types.Assessment, error)
	ListUnsealedSessions(ctx context.Context) ([]*types.ExamSession, error)
	HealthCheck(ctx context.Context) error
	ValidateSchema() error
}

type reporter struct {
	db  store
	out io.Writer
}

const timeLayout = "2006-01-02 15:04"

func (r *reporter) heading(s string) {
	fmt.Fprintln(r.out, color.CyanString("\n%s", s))
}

func (r *reporter) rooms(ctx context.Context) error {
	rooms, err := r.db.ListRooms(ctx)
	if err != nil {
		return err
	}

	r.heading("Exam Rooms")
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Code", "Name", "Duration", "Created By", "Created", "Status"})
	for _, room := range rooms {
		status := color.GreenString("open")
		if !room.IsActive {
			status = color.YellowString("closed")
		}
		table.Append([]string{
			room.UniqueCode,
			room.Name,
			fmt.Sprintf("%d min", room.ExamDurationMinutes),
			room.CreatedBy,
			room.CreatedAt.Local().Format(timeLayout),
			status,
		})
	}
	table.Render()
	return nil
}

// findRoom matches closed rooms too, which the join lookup would not
func (r *reporter) findRoom(ctx context.Context, code string) (*types.ExamRoom, error) {
	rooms, err := r.db.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, room := range rooms {
		if room.UniqueCode == code {
			return room, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrRoomNotFound, code)
}

func (r *reporter) sessions(ctx context.Context, code string) error {
	room, err := r.findRoom(ctx, code)
	if err != nil {
		return err
	}
	sessions, err := r.db.ListSessions(ctx, room.ID)
	if err != nil {
		return err
	}

	r.heading(fmt.Sprintf("Sessions in %s (%s)", room.Name, room.UniqueCode))
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Roll", "Candidate", "Started", "Ended", "Warnings"})
	for _, s := range sessions {
		ended := color.GreenString("in progress")
		if s.EndTime != nil {
			ended = s.EndTime.Local().Format(timeLayout)
		}
		warnings := strconv.Itoa(s.WarningsCount)
		if s.WarningsCount > 0 {
			warnings = color.RedString(warnings)
		}
		table.Append([]string{
			s.RollNumber,
			s.CandidateName,
			s.StartTime.Local().Format(timeLayout),
			ended,
			warnings,
		})
	}
	table.Render()
	return nil
}

func (r *reporter) logs(ctx context.Context, candidate string) error {
	session, err := r.db.FindSessionByCandidate(ctx, strings.TrimSpace(candidate))
	if err != nil {
		return err
	}

	r.heading(fmt.Sprintf("Violation log for %s (roll %s, room %s)", session.CandidateName, session.RollNumber, session.RoomCode))
	if len(session.Log) == 0 {
		fmt.Fprintln(r.out, color.GreenString("No violations recorded"))
		return nil
	}

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"Time", "Kind", "Severity", "Message"})
	for _, ev := range session.Log {
		table.Append([]string{
			ev.Timestamp.Local().Format(time.TimeOnly),
			string(ev.Kind),
			severity(ev.Severity),
			ev.Message,
		})
	}
	table.Render()
	return nil
}

func severity(s types.Severity) string {
	switch s {
	case types.SeverityHigh:
		return color.RedString(string(s))
	case types.SeverityMedium:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func (r *reporter) assessments(ctx context.Context) error {
	assessments, err := r.db.ListAssessments(ctx)
	if err != nil {
		return err
	}

	r.heading("Assessments")
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"ID", "Title", "Questions", "Total Points"})
	for _, a := range assessments {
		table.Append([]string{a.ID, a.Title, strconv.Itoa(len(a.Questions)), strconv.Itoa(a.TotalPoints)})
	}
	table.Render()
	return nil
}

func (r *reporter) check(ctx context.Context) error {
	if err := r.db.HealthCheck(ctx); err != nil {
		fmt.Fprintln(r.out, color.RedString("database: %v", err))
		return err
	}
	fmt.Fprintln(r.out, color.GreenString("database: healthy"))

	if err := r.db.ValidateSchema(); err != nil {
		fmt.Fprintln(r.out, color.RedString("schema: %v", err))
		return err
	}
	fmt.Fprintln(r.out, color.GreenString("schema: valid"))

	unsealed, err := r.db.ListUnsealedSessions(ctx)
	if err != nil {
		return err
	}
	if len(unsealed) == 0 {
		fmt.Fprintln(r.out, color.GreenString("unsealed sessions: none"))
		return nil
	}
	fmt.Fprintln(r.out, color.YellowString("unsealed sessions: %d (resumed or sealed on next server start)", len(unsealed)))
	return nil
}
