// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command nvfscli exercises the nvfs engine against a real file standing
// in for a byte-addressable non-volatile medium.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"go.uber.org/zap"

	"modernc.org/nvfs"
)

var (
	path   = flag.String("f", "", "backing file (required)")
	fsSize = flag.Int64("size", 1<<20, "filesystem region size in bytes, used when creating -f")
	block  = flag.Int("block", 64, "block size in bytes")
	maxB   = flag.Int("maxblocks", 256, "max blocks per file")
	maxF   = flag.Int("maxfiles", 1021, "max file identifiers (prefer prime)")
	debug  = flag.Int("v", 1, "diagnostic verbosity, 0..4")
)

func cfg() nvfs.Config {
	return nvfs.Config{
		FSStart:          0,
		FSSize:           *fsSize,
		BlockSize:        *block,
		MaxBlocksPerFile: *maxB,
		MaxFiles:         *maxF,
	}
}

func openEngine() *nvfs.Engine {
	if *path == "" {
		log.Fatal("nvfscli: -f is required")
	}

	f, err := os.OpenFile(*path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		log.Fatal(err)
	}

	fi, err := f.Stat()
	if err != nil {
		log.Fatal(err)
	}
	if fi.Size() < *fsSize {
		if err := f.Truncate(*fsSize); err != nil {
			log.Fatal(err)
		}
	}

	medium, err := nvfs.NewOSMedium(f)
	if err != nil {
		log.Fatal(err)
	}

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	diag := nvfs.NewZapDiagSink(zl.Sugar(), *debug)

	e := nvfs.NewEngine(medium, cfg(), diag)
	if err := e.Init(); err != nil {
		log.Fatal(err)
	}
	return e
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nvfscli -f FILE [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  format [quick|full|wipe]   (re)initialize the filesystem region")
	fmt.Fprintln(os.Stderr, "  put <id> <file>            write a local file's contents to identifier id")
	fmt.Fprintln(os.Stderr, "  append <id> <file>         append a local file's contents to identifier id")
	fmt.Fprintln(os.Stderr, "  get <id>                   print identifier id's contents to stdout")
	fmt.Fprintln(os.Stderr, "  rm <id>                    delete identifier id")
	fmt.Fprintln(os.Stderr, "  dump                       print the allocation table and free-list summary")
	fmt.Fprintln(os.Stderr, "  wipe                       destructively zero and reformat")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "format":
		mode := nvfs.FormatQuick
		if len(args) > 1 {
			switch args[1] {
			case "full":
				mode = nvfs.FormatFull
			case "wipe":
				mode = nvfs.FormatWipe
			}
		}
		e := openEngine()
		if err := e.Format(mode); err != nil {
			log.Fatal(err)
		}

	case "put", "append":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		id := atoi(args[1])
		data, err := os.ReadFile(args[2])
		if err != nil {
			log.Fatal(err)
		}

		e := openEngine()
		var h *nvfs.Handle
		if args[0] == "put" {
			h, err = e.OpenWrite(id)
		} else {
			h, err = e.OpenAppend(id)
		}
		if err != nil {
			log.Fatal(err)
		}
		if _, err := e.Write(h, data); err != nil {
			log.Println("nvfscli: write:", err)
		}
		if err := e.Close(h); err != nil {
			log.Fatal(err)
		}

	case "get":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		id := atoi(args[1])
		e := openEngine()
		h, err := e.OpenRead(id)
		if err != nil {
			log.Fatal(err)
		}
		buf := make([]byte, h.Size())
		if _, err := e.Read(h, buf); err != nil {
			log.Fatal(err)
		}
		if _, err := io.WriteString(os.Stdout, string(buf)); err != nil {
			log.Fatal(err)
		}

	case "rm":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		e := openEngine()
		if err := e.Delete(atoi(args[1])); err != nil {
			log.Fatal(err)
		}

	case "dump":
		e := openEngine()
		rep, err := e.Dump()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("free list: %d blocks (head=%d), %d blocks total\n", rep.FreeLen, rep.FreeHead, rep.NumBlocks)
		for _, fl := range rep.Files {
			fmt.Printf("  id=%-6d size=%-8d chain=%-4d head=%d\n", fl.ID, fl.Size, fl.ChainLen, fl.Head)
		}

	case "wipe":
		e := openEngine()
		if err := e.Wipe(); err != nil {
			log.Fatal(err)
		}

	default:
		usage()
		os.Exit(2)
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("nvfscli: not a number: %q", s)
	}
	return n
}
