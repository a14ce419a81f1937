package db

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// MigrateCLI handles the 'gestured migrate' subcommand.
type MigrateCLI struct {
	Out        io.Writer
	In         io.Reader
	Migrations fs.FS
}

// Run dispatches one migrate action against the database at dbPath.
func (c *MigrateCLI) Run(args []string, dbPath string) error {
	if len(args) < 1 {
		c.PrintHelp()
		return fmt.Errorf("missing migrate action")
	}
	if c.Migrations == nil {
		c.Migrations = MigrationsFS()
	}

	action := args[0]
	if action == "help" {
		c.PrintHelp()
		return nil
	}

	// Open without running migrations: this command manages the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(c.Migrations); err != nil {
			return err
		}
		fmt.Fprintln(c.Out, "✓ All migrations applied successfully")
		return c.printVersion(database)

	case "down":
		if err := database.MigrateDown(c.Migrations); err != nil {
			return err
		}
		fmt.Fprintln(c.Out, "✓ Migration rolled back successfully")
		return c.printVersion(database)

	case "status":
		return c.status(database)

	case "version":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := database.MigrateTo(c.Migrations, uint(v)); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "✓ Migrated to version %d successfully\n", v)
		return nil

	case "force":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "⚠️  WARNING: Forcing migration version to %d\n", v)
		fmt.Fprint(c.Out, "Continue? [y/N]: ")
		if !c.confirm() {
			fmt.Fprintln(c.Out, "Aborted")
			return nil
		}
		if err := database.MigrateForce(c.Migrations, v); err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "✓ Migration version forced to %d\n", v)
		return nil

	default:
		c.PrintHelp()
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func versionArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: gestured migrate %s <version_number>", args[0])
	}
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version number: %s", args[1])
	}
	return v, nil
}

func (c *MigrateCLI) confirm() bool {
	if c.In == nil {
		return false
	}
	line, _ := bufio.NewReader(c.In).ReadString('\n')
	line = strings.TrimSpace(line)
	return line == "y" || line == "Y"
}

func (c *MigrateCLI) printVersion(database *DB) error {
	version, dirty, err := database.MigrateVersion(c.Migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

func (c *MigrateCLI) status(database *DB) error {
	st, err := database.GetMigrationStatus(c.Migrations)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, "=== Migration Status ===")
	fmt.Fprintf(c.Out, "Current version: %d\n", st.CurrentVersion)
	fmt.Fprintf(c.Out, "Latest available: %d\n", st.LatestVersion)
	fmt.Fprintf(c.Out, "Dirty: %v\n", st.Dirty)
	switch {
	case st.Dirty:
		fmt.Fprintln(c.Out, "⚠️  Database is in a dirty state. Inspect it, then run: gestured migrate force <version>")
	case st.Pending():
		fmt.Fprintf(c.Out, "⚠️  Database is %d version(s) behind. Run 'gestured migrate up' to update.\n", st.LatestVersion-st.CurrentVersion)
	default:
		fmt.Fprintln(c.Out, "✓ Database is up to date!")
	}
	return nil
}

// PrintHelp displays the help message for the migrate command
func (c *MigrateCLI) PrintHelp() {
	fmt.Fprint(c.Out, `Database Migration Commands

Usage: gestured migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  help            Show this help message

Examples:
  gestured migrate up
  gestured -db /var/lib/gestured/gesture.db migrate status
`)
}
