// Command soundgood is the admin CLI for the rental engine. It talks to the
// database directly, so it needs DATABASE_URL just like the server.
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	instrumentrepo "github.com/wmuth/SoundGoodDB/repository/instrument"
	rentalrepo "github.com/wmuth/SoundGoodDB/repository/rental"
	rulerepo "github.com/wmuth/SoundGoodDB/repository/rule"
	"github.com/wmuth/SoundGoodDB/service/allocation"
	catalogsvc "github.com/wmuth/SoundGoodDB/service/catalog"
	"github.com/wmuth/SoundGoodDB/util/database"
)

type cli struct {
	db      *sql.DB
	alloc   allocation.Service
	catalog catalogsvc.Service
	rules   rulerepo.Repo
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &cli{}

	root := &cobra.Command{
		Use:          "soundgood",
		Short:        "Soundgood music school rental administration",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return errors.New("DATABASE_URL not set")
			}
			db, err := database.New(cmd.Context(), dsn)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			app.db = db
			ir := instrumentrepo.New(db)
			app.alloc = allocation.New(rentalrepo.New(db), ir, rulerepo.New(db))
			app.catalog = catalogsvc.New(ir)
			app.rules = rulerepo.New(db)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.db != nil {
				_ = app.db.Close()
			}
		},
	}

	root.AddCommand(
		newListCmd(app),
		newRentCmd(app),
		newTerminateCmd(app),
		newReturnCmd(app),
		newOverdueCmd(app),
		newRulesCmd(app),
	)
	return root
}

func newListCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list [instrument_type]",
		Short: "List instruments with availability, optionally by type prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			rows, err := app.catalog.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, i := range rows {
				fmt.Printf("ID:%d => %s by %s. Price %.2f with %d left to rent out of a total %d.\n",
					i.ID, i.Model, i.Brand, i.Price, i.Available, i.Count)
			}
			return nil
		},
	}
}

func newRentCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rent <student_id> <instrument_id>",
		Short: "Rent an instrument for a student",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, iid, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			out, err := app.alloc.Request(cmd.Context(), sid, iid, nil)
			if err != nil {
				return decisionErr(err)
			}
			if out.Status == allocation.StatusRejected {
				fmt.Printf("Rejected: %s\n", out.Reason)
				return nil
			}
			fmt.Printf("Rented! Renting %d for student %d of instrument %d started at %s\n",
				out.Rental.ID, out.Rental.StudentID, out.Rental.InstrumentID,
				out.Rental.StartDate.Format(time.RFC3339))
			return nil
		},
	}
}

func newTerminateCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <student_id> <instrument_id>",
		Short: "Terminate the student's rental of an instrument",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, iid, err := parsePair(args[0], args[1])
			if err != nil {
				return err
			}
			out, err := app.alloc.ReturnByPair(cmd.Context(), sid, iid, time.Time{})
			if err != nil {
				var multi *allocation.MultipleMatchesError
				if errors.As(err, &multi) {
					fmt.Println("Multiple rentings to terminate! Pick one with 'return <rent_id>':")
					for _, r := range multi.Candidates {
						fmt.Printf("Renting %d for student %d of instrument %d started at %s\n",
							r.ID, r.StudentID, r.InstrumentID, r.StartDate.Format(time.RFC3339))
					}
					return nil
				}
				return decisionErr(err)
			}
			fmt.Printf("Terminated renting %d!\n", out.Rental.ID)
			return nil
		},
	}
}

func newReturnCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "return <rent_id>",
		Short: "Close a rental by its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rent id %q", args[0])
			}
			out, err := app.alloc.Return(cmd.Context(), id, time.Time{})
			if err != nil {
				return decisionErr(err)
			}
			fmt.Printf("Terminated renting %d!\n", out.Rental.ID)
			return nil
		},
	}
}

func newOverdueCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Report active rentals older than rent_max_time months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := app.alloc.Overdue(cmd.Context())
			if err != nil {
				return decisionErr(err)
			}
			if len(rows) == 0 {
				fmt.Println("No overdue rentals.")
				return nil
			}
			for _, r := range rows {
				fmt.Printf("OVERDUE renting %d: student %d, instrument %d, since %s\n",
					r.ID, r.StudentID, r.InstrumentID, r.StartDate.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newRulesCmd(app *cli) *cobra.Command {
	rules := &cobra.Command{
		Use:   "rules",
		Short: "Show or change business rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := app.rules.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Println(r)
			}
			return nil
		},
	}
	rules.AddCommand(&cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set a business rule, e.g. rent_max_count 2",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n, err := strconv.Atoi(args[1]); err != nil || n <= 0 {
				return fmt.Errorf("rule value must be a positive integer, got %q", args[1])
			}
			return app.rules.Set(cmd.Context(), args[0], args[1])
		},
	})
	return rules
}

func parsePair(s, i string) (int32, int32, error) {
	sid, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid student id %q", s)
	}
	iid, err := strconv.ParseInt(i, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid instrument id %q", i)
	}
	return int32(sid), int32(iid), nil
}

func decisionErr(err error) error {
	switch allocation.Code(err) {
	case allocation.ErrNotFound:
		return errors.New("no matching renting or instrument found")
	case allocation.ErrAlreadyClosed:
		return errors.New("renting is already terminated")
	case allocation.ErrInvalidRange:
		return errors.New("end date is before start date")
	case allocation.ErrConfigInvalid:
		return errors.New("business rule missing or not a positive integer")
	case allocation.ErrIntegrity:
		return errors.New("unknown student or instrument")
	case allocation.ErrStorage:
		return errors.New("storage unavailable, try again")
	default:
		return err
	}
}
