package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/cephodm/internal/logger"
	"github.com/marmos91/cephodm/pkg/config"
	"github.com/marmos91/cephodm/pkg/entity"
	"github.com/marmos91/cephodm/pkg/manager"
	"github.com/marmos91/cephodm/pkg/query"
	"github.com/marmos91/cephodm/pkg/repository"
)

const usage = `cephodm - object-document mapper for S3 and Ceph RGW

Usage:
  cephodm [global flags] <command> [flags] [args]

Commands:
  init                     write a sample configuration file
  buckets                  list buckets
  mb <bucket>              create a bucket
  rb <bucket>              remove an empty bucket
  ls                       list files
  get <bucket> <id>        print a file body
  put <bucket> <path>      upload a file and print its id
  meta <bucket> <id> k=v   set metadata entries on a file
  rm <bucket> <id>         remove a file

Global flags:
`

func main() {
	global := flag.NewFlagSet("cephodm", flag.ExitOnError)
	configPath := global.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/cephodm/config.yaml)")
	logLevel := global.String("log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}

	cmd, args := args[0], args[1:]

	if cmd == "init" {
		if err := runInit(*configPath, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(*logLevel)
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cmd, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runInit(configPath string, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

// run executes one command against a fresh object manager.
func run(ctx context.Context, cfg *config.Config, cmd string, args []string, out io.Writer) (err error) {
	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsResult.Server.Stop(shutdownCtx)
		}()
	}

	om, err := config.NewObjectManager(ctx, cfg, metricsResult)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := om.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	switch cmd {
	case "buckets":
		return listBuckets(ctx, om, out)
	case "mb":
		return withArgs(args, 1, "mb <bucket>", func() error { return makeBucket(ctx, om, args[0]) })
	case "rb":
		return withArgs(args, 1, "rb <bucket>", func() error { return removeBucket(ctx, om, args[0]) })
	case "ls":
		return listFiles(ctx, om, args, out)
	case "get":
		return withArgs(args, 2, "get <bucket> <id>", func() error { return getFile(ctx, om, args[0], args[1], out) })
	case "put":
		return putFile(ctx, om, args, out)
	case "meta":
		return setMetadata(ctx, om, args)
	case "rm":
		return withArgs(args, 2, "rm <bucket> <id>", func() error { return removeFile(ctx, om, args[0], args[1]) })
	default:
		return fmt.Errorf("unknown command %q (run cephodm -h for usage)", cmd)
	}
}

func withArgs(args []string, n int, synopsis string, fn func() error) error {
	if len(args) != n {
		return fmt.Errorf("usage: cephodm %s", synopsis)
	}
	return fn()
}

func listBuckets(ctx context.Context, om *manager.ObjectManager, out io.Writer) error {
	rs, err := om.Buckets().FindAll(ctx)
	if err != nil {
		return err
	}
	for _, name := range rs.Names() {
		fmt.Fprintln(out, name)
	}
	return nil
}

func makeBucket(ctx context.Context, om *manager.ObjectManager, name string) error {
	b, err := entity.NewBucket(name)
	if err != nil {
		return err
	}
	if err := om.Persist(b); err != nil {
		return err
	}
	return om.Flush(ctx)
}

func removeBucket(ctx context.Context, om *manager.ObjectManager, name string) error {
	b, err := om.Buckets().Find(ctx, name)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("bucket %s doesn't exist", name)
	}
	if err := om.Remove(b); err != nil {
		return err
	}
	return om.Flush(ctx)
}

func listFiles(ctx context.Context, om *manager.ObjectManager, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	bucket := fs.String("bucket", "", "Only list this bucket")
	limit := fs.Int("limit", 0, "Maximum number of files (0 = no limit)")
	offset := fs.Int("offset", 0, "Number of matching files to skip")
	from := fs.String("from", "", "Start after this key (requires -bucket)")
	order := fs.String("order", "", "Sort keys, e.g. id:desc,metadata.author:asc")
	var meta metadataFlag
	fs.Var(&meta, "meta", "Metadata filter key=value (repeatable)")
	_ = fs.Parse(args)

	cb := query.NewCriteria()
	if *bucket != "" {
		cb.InBucket(*bucket)
	}
	for k, v := range meta {
		cb.WithMetadata(k, v)
	}
	criteria, err := cb.Build()
	if err != nil {
		return err
	}

	o, err := parseOrder(*order)
	if err != nil {
		return err
	}

	var rs *repository.FileResultSet
	if *from != "" {
		if *offset != 0 {
			return fmt.Errorf("-from and -offset are exclusive")
		}
		rs, err = om.Files().FindByFrom(ctx, criteria, *from, o, *limit)
	} else {
		rs, err = om.Files().FindBy(ctx, criteria, o, query.Page{Limit: *limit, Offset: *offset})
	}
	if err != nil {
		return err
	}

	for _, f := range rs.Files() {
		name, err := f.Filename()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", f.BucketName(), f.ID(), name)
	}
	for _, b := range rs.Truncated() {
		marker, _ := rs.Cursor().Marker(b)
		fmt.Fprintf(out, "# truncated: %s (resume with -bucket %s -from %s)\n", b, b, marker)
	}
	return nil
}

func getFile(ctx context.Context, om *manager.ObjectManager, bucket, id string, out io.Writer) error {
	f, err := om.Files().Find(ctx, bucket, id)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("file %s/%s doesn't exist", bucket, id)
	}
	bin, err := f.Bin()
	if err != nil {
		return err
	}
	_, err = out.Write(bin)
	return err
}

func putFile(ctx context.Context, om *manager.ObjectManager, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	name := fs.String("name", "", "File name stored in metadata (default: base name of path)")
	var meta metadataFlag
	fs.Var(&meta, "meta", "Metadata entry key=value (repeatable)")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: cephodm put [-name n] [-meta k=v] <bucket> <path>")
	}
	bucketName, path := fs.Arg(0), fs.Arg(1)

	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	bucket, err := entity.NewBucket(bucketName)
	if err != nil {
		return err
	}

	f := entity.NewFile()
	if err := f.SetBucket(bucket); err != nil {
		return err
	}
	f.SetBin(body)
	if err := f.SetAllMetadata(meta); err != nil {
		return err
	}
	filename := *name
	if filename == "" {
		filename = baseName(path)
	}
	if err := f.SetFilename(filename); err != nil {
		return err
	}

	if err := om.Persist(f); err != nil {
		return err
	}
	if err := om.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, f.ID())
	return nil
}

func setMetadata(ctx context.Context, om *manager.ObjectManager, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: cephodm meta <bucket> <id> key=value...")
	}

	f, err := om.Reference(args[0], args[1])
	if err != nil {
		return err
	}
	for _, kv := range args[2:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid metadata entry %q: expected key=value", kv)
		}
		if v == "" {
			err = f.RemoveMetadata(k)
		} else {
			err = f.SetMetadata(k, v)
		}
		if err != nil {
			return err
		}
	}
	return om.Flush(ctx)
}

func removeFile(ctx context.Context, om *manager.ObjectManager, bucket, id string) error {
	f, err := om.Reference(bucket, id)
	if err != nil {
		return err
	}
	if err := om.Remove(f); err != nil {
		return err
	}
	return om.Flush(ctx)
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// metadataFlag collects repeated key=value flags.
type metadataFlag map[string]string

func (m *metadataFlag) String() string {
	if m == nil || *m == nil {
		return ""
	}
	parts := make([]string, 0, len(*m))
	for k, v := range *m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m *metadataFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return errors.New("expected key=value")
	}
	if *m == nil {
		*m = make(metadataFlag)
	}
	(*m)[k] = v
	return nil
}

// parseOrder reads "field[:dir],..." where field is bucket, id, bin or
// metadata.<key> and dir is asc or desc.
func parseOrder(s string) (query.Order, error) {
	if s == "" {
		return nil, nil
	}

	var o query.Order
	for _, part := range strings.Split(s, ",") {
		field, dir, _ := strings.Cut(strings.TrimSpace(part), ":")

		direction := query.Ascending
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			direction = query.Descending
		default:
			return nil, fmt.Errorf("invalid sort direction %q in %q", dir, part)
		}

		key := query.OrderKey{Field: field, Direction: direction}
		if name, nested, ok := strings.Cut(field, "."); ok {
			key = query.Nested(name, query.OrderKey{Field: nested, Direction: direction})
		}
		o = append(o, key)
	}

	if err := o.ValidateFileOrder(); err != nil {
		return nil, err
	}
	return o, nil
}
