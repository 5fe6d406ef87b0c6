package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"sketch-lobby/internal/bootstrap"
	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/service"
)

const usage = `usage: roomctl <command> [flags]

commands:
  flagged           list rooms left without a resolvable host
  repair -room N    rerun host succession on room N
`

// operator is the part of the coordinator roomctl drives.
type operator interface {
	FlaggedRooms(ctx context.Context) ([]domain.Room, error)
	RepairHost(ctx context.Context, roomID uint) (*service.RepairResult, error)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		fatal(err)
	}
	log := bootstrap.NewLogger(cfg)
	core, err := bootstrap.NewCore(cfg, log)
	if err != nil {
		fatal(err)
	}
	defer core.Close(log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := run(ctx, core.NewCoordinator(nil), os.Args[1:], os.Stdout); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, op operator, args []string, out io.Writer) error {
	switch args[0] {
	case "flagged":
		rooms, err := op.FlaggedRooms(ctx)
		if err != nil {
			return err
		}
		renderFlagged(out, rooms)
		return nil
	case "repair":
		fs := flag.NewFlagSet("repair", flag.ContinueOnError)
		fs.SetOutput(out)
		roomID := fs.Uint("room", 0, "room id to repair")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *roomID == 0 {
			return fmt.Errorf("repair: -room is required")
		}
		result, err := op.RepairHost(ctx, *roomID)
		if err != nil {
			return err
		}
		renderRepair(out, *roomID, result)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func renderFlagged(out io.Writer, rooms []domain.Room) {
	if len(rooms) == 0 {
		fmt.Fprintln(out, color.Green.Render("no flagged rooms"))
		return
	}
	table := newTable(out, []string{"Room", "Title", "Status", "Flagged At"})
	table.AppendBulk(lo.Map(rooms, func(r domain.Room, _ int) []string {
		return []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.Title,
			string(r.Status),
			r.UpdatedAt.Format(time.RFC3339),
		}
	}))
	table.Render()
	fmt.Fprintln(out, color.Yellow.Sprintf("%d room(s) need repair", len(rooms)))
}

func renderRepair(out io.Writer, roomID uint, result *service.RepairResult) {
	if len(result.Evicted) > 0 {
		table := newTable(out, []string{"Evicted Identity", "Kind", "Nickname"})
		table.AppendBulk(lo.Map(result.Evicted, func(m domain.Membership, _ int) []string {
			return []string{strconv.FormatUint(m.IdentityID, 10), string(m.IdentityKind), m.Nickname}
		}))
		table.Render()
	}
	if result.RoomDeleted {
		fmt.Fprintln(out, color.Yellow.Sprintf("room %d had no resolvable occupant and was deleted", roomID))
		return
	}
	fmt.Fprintln(out, color.Green.Sprintf("room %d repaired, host is now %s (%d)", roomID, result.Room.HostNick, result.Room.HostID))
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.OpBold).Render("roomctl: "+err.Error()))
	os.Exit(1)
}
