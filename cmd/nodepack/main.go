package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yangshun/nodepack"
	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/vfs"
)

func main() {
	mode := flag.String("mode", "", "Execution mode: direct or isolated (default from NODEPACK_MODE)")
	dir := flag.String("dir", "", "Directory to load into the virtual filesystem before running")
	jsonOut := flag.Bool("json", false, "Print the full result as JSON instead of just the data")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: nodepack [flags] <script.js>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	script := flag.Arg(0)

	cfg, err := nodepack.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *mode != "" {
		cfg.Execution.Mode = *mode
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	fs := vfs.New()
	if *dir != "" {
		if err := loadDirectory(fs, *dir); err != nil {
			log.Fatalf("Failed to load %s: %v", *dir, err)
		}
	}

	code, err := os.ReadFile(script)
	if err != nil {
		log.Fatalf("Failed to read script: %v", err)
	}

	rt, err := nodepack.New(nodepack.Options{
		Config:     cfg,
		Logger:     logger,
		Registerer: prometheus.NewRegistry(),
		FS:         fs,
	})
	if err != nil {
		log.Fatalf("Failed to create runtime: %v", err)
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Interrupted, stopping execution...")
		cancel()
	}()

	res, err := rt.Execute(ctx, nodepack.ExecutionRequest{
		Code:     string(code),
		Filename: "/" + path.Base(script),
		Argv:     flag.Args()[1:],
		OnLog:    func(line string) { fmt.Println(line) },
	})
	if err != nil {
		log.Fatalf("Execution failed: %v", err)
	}

	if *jsonOut {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		fmt.Println(string(out))
	} else if res.OK {
		if res.Data != nil {
			out, _ := json.Marshal(res.Data)
			fmt.Println(string(out))
		}
	} else {
		fmt.Fprintln(os.Stderr, "error: "+res.Error.Error())
	}
	if !res.OK {
		os.Exit(1)
	}
}

// loadDirectory copies a host directory tree into the virtual
// filesystem rooted at /.
func loadDirectory(fs *vfs.FS, root string) error {
	files := make(map[string][]byte)
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files["/"+filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return err
	}
	return fs.WriteSnapshot(files)
}
