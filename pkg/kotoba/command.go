package kotoba

// Command represents a discrete application operation with its specific
// configuration. Commands are created by [Parse] and dispatched by concrete
// type in [Main]: [MigrateCommand] initializes the store schema,
// [RunCommand] starts the HTTP server. The interface is a marker tying the
// command set together.
type Command interface {
	isCommand()
}

// MigrateCommand initializes or updates the store schema. For SurrealDB
// this defines the accounts index; for PostgreSQL it runs GORM AutoMigrate
// over all row types. Safe to run repeatedly.
type MigrateCommand struct{}

func (*MigrateCommand) isCommand() {}

// RunCommand starts the HTTP server. All configuration comes from Config;
// the struct exists so run-specific options have a place to land later.
type RunCommand struct{}

func (*RunCommand) isCommand() {}
