// Command gqlsqlctl is a demo CLI around the adapter: introspect a
// configured database and print its schema, or run one ad-hoc query
// against it. Config is loaded with viper; when the config file changes
// (watched via fsnotify) the metadata rule file is re-read and the schema
// re-introspected, mirroring the teacher's config/serv watcher. The engine
// built at startup keeps the model it was given.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vertagql/gqlsql"
	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/sdata"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Config is the on-disk shape viper decodes, one section per concern the
// teacher's serv.Config also separates: connection, schema metadata, and
// the one demo query to run.
type Config struct {
	Dialect      string `mapstructure:"dialect"`
	DSN          string `mapstructure:"dsn"`
	MetadataFile string `mapstructure:"metadata_file"`

	Table        string   `mapstructure:"table"`
	ScalarFields []string `mapstructure:"fields"`
	Limit        *int     `mapstructure:"limit"`
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./gqlsqlctl.yaml", "path to config file")
	introspectOnly := flag.Bool("introspect", false, "print the introspected schema and exit")
	jsonLog := flag.Bool("json", false, "emit logs as JSON instead of console")
	flag.Parse()

	log := newLogger(*jsonLog).Sugar()
	defer log.Sync()

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		log.Fatalw("read config", "path", configPath, "error", err)
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		log.Fatalw("decode config", "error", err)
	}

	d := dialect.Lookup(canonicalDialectName(conf.Dialect))
	if d == nil {
		log.Fatalw("unknown dialect", "dialect", conf.Dialect)
	}

	ctx := context.Background()
	connFactory := func(context.Context) (*sql.DB, error) {
		return sql.Open(driverName(conf.Dialect), conf.DSN)
	}

	var ml *sdata.MetadataLoader
	if conf.MetadataFile != "" {
		ml = loadMetadata(log, conf.MetadataFile)
	}

	model, err := gqlsql.Introspect(ctx, d, connFactory, ml)
	if err != nil {
		log.Fatalw("introspect", "error", err)
	}
	log.Infow("introspected schema", "tables", len(model.Tables()))

	if *introspectOnly {
		printJSON(tableNames(model))
		return
	}

	watchMetadata(v, log, func() {
		if conf.MetadataFile == "" {
			return
		}
		reloaded := loadMetadata(log, conf.MetadataFile)
		reloadedModel, err := gqlsql.Introspect(ctx, d, connFactory, reloaded)
		if err != nil {
			log.Errorw("reload after metadata change", "error", err)
			return
		}
		model = reloadedModel
		log.Infow("reloaded schema after metadata change", "tables", len(model.Tables()))
	})

	engine := gqlsql.New(d, model, nil, connFactory, log)

	if conf.Table == "" {
		log.Fatalw("config must set table to run a demo query, or pass -introspect")
	}

	op := &opx.OperationTree{
		Kind: opx.OpQuery,
		RootSelections: []*opx.Selection{{
			Name:         conf.Table,
			ScalarFields: conf.ScalarFields,
			Limit:        conf.Limit,
		}},
	}

	resp, warnings, errs := engine.Execute(ctx, op, nil, opx.UserContext{}, time.Time{})
	for _, w := range warnings {
		log.Warnw("assembler warning", "path", w.Path, "message", w.Message)
	}
	if len(errs) > 0 {
		log.Fatalw("execute", "error", errs[0])
	}
	printJSON(resp.Data)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("gqlsqlctl")
	v.AutomaticEnv()
	return v
}

// watchMetadata calls onChange whenever the config file changes, the same
// way the teacher's schema config watches for file changes: viper's
// WatchConfig wraps fsnotify and watches the config file only, not the
// metadata rule file.
func watchMetadata(v *viper.Viper, log *zap.SugaredLogger, onChange func()) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("config file changed", "file", e.Name, "op", e.Op.String())
		onChange()
	})
	v.WatchConfig()
}

func loadMetadata(log *zap.SugaredLogger, path string) *sdata.MetadataLoader {
	f, err := os.Open(path)
	if err != nil {
		log.Errorw("open metadata file", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	ml, err := sdata.NewMetadataLoaderYAML(f)
	if err != nil {
		log.Errorw("parse metadata file", "path", path, "error", err)
		return nil
	}
	return ml
}

// canonicalDialectName maps user-facing config aliases onto the names each
// dialect registers itself under via dialect.Register (see each dialect
// file's init()).
func canonicalDialectName(name string) string {
	switch name {
	case "mariadb":
		return "mysql"
	case "mssql":
		return "sqlserver"
	default:
		return name
	}
}

func driverName(dialectName string) string {
	switch canonicalDialectName(dialectName) {
	case "postgres":
		return "pgx"
	case "mysql":
		return "mysql"
	case "sqlite":
		return "sqlite"
	case "sqlserver":
		return "sqlserver"
	default:
		return dialectName
	}
}

func tableNames(model *sdata.DBModel) []string {
	tables := model.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.GraphQLName
	}
	return names
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// newLogger builds a zap logger configured the way the teacher's
// cmd.newLoggerWithOutput does: a console encoder for interactive use, a
// JSON encoder for log aggregation.
func newLogger(jsonOutput bool) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var core zapcore.Core
	if jsonOutput {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), os.Stdout, zap.InfoLevel)
	} else {
		econf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), os.Stdout, zap.InfoLevel)
	}
	return zap.New(core)
}
