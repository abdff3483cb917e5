package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/angelalalacheng/scmindex"
)

func main() {
	var (
		path     = pflag.StringP("file", "f", "scm.db", "backing file of the index")
		size     = pflag.Uint64P("size", "s", 16*1024*1024, "size of the backing file if it has to be created")
		truncate = pflag.BoolP("truncate", "t", false, "discard any state stored in the backing file")
	)
	pflag.Parse()

	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *path, *size, *truncate); err != nil && !errors.Is(err, context.Canceled) {
		logger.Get(ctx).Fatal("index shell failed", zap.Error(err))
	}
}

func run(ctx context.Context, path string, size uint64, truncate bool) error {
	if err := ensureFile(path, size); err != nil {
		return err
	}

	ix, err := scmindex.Open(path, truncate)
	if err != nil {
		return err
	}
	logger.Get(ctx).Info("index opened",
		zap.String("file", path),
		zap.Uint64("items", ix.Items()),
		zap.Uint64("unique", ix.Unique()),
		zap.Uint64("utilized", ix.Utilized()),
	)

	err = parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("repl", parallel.Exit, func(ctx context.Context) error {
			return repl(ctx, ix)
		})
		return nil
	})
	if err2 := ix.Close(); err == nil {
		err = err2
	}
	return err
}

// ensureFile creates the backing file at the requested fixed size when it
// does not exist yet. The index itself never grows or truncates the file.
func ensureFile(path string, size uint64) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.WithStack(err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}

func repl(ctx context.Context, ix *scmindex.Index) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}
		keyword, args := fields[0], fields[1:]
		if keyword == "quit" {
			return nil
		}

		if cmd, ok := commands[keyword]; ok {
			cmd.do(ix, args)
		} else {
			fmt.Printf("unknown command %q\n", keyword)
			printHelp()
		}
		fmt.Print("> ")
	}
	return errors.WithStack(scanner.Err())
}

type command struct {
	desc string
	do   func(ix *scmindex.Index, args []string)
}

var commands map[string]*command

func init() {
	commands = map[string]*command{
		"insert": {
			desc: "insert <word>... - record one occurrence of every word",
			do: func(ix *scmindex.Index, args []string) {
				for _, word := range args {
					if err := ix.Insert(word); err != nil {
						fmt.Printf("insert %q failed: %v\n", word, err)
						return
					}
				}
			},
		},
		"delete": {
			desc: "delete <word> - remove all occurrences of the word",
			do: func(ix *scmindex.Index, args []string) {
				for _, word := range args {
					if err := ix.Delete(word); err != nil {
						fmt.Printf("delete %q failed: %v\n", word, err)
						return
					}
				}
			},
		},
		"exists": {
			desc: "exists <word> - print the occurrence count of the word",
			do: func(ix *scmindex.Index, args []string) {
				for _, word := range args {
					fmt.Printf("%s: %d\n", word, ix.Exists(word))
				}
			},
		},
		"list": {
			desc: "list - print every word and its count in ascending order",
			do: func(ix *scmindex.Index, _ []string) {
				ix.Traverse(func(word string, count uint64) {
					fmt.Printf("%8d %s\n", count, word)
				})
			},
		},
		"stats": {
			desc: "stats - print index counters and arena usage",
			do: func(ix *scmindex.Index, _ []string) {
				fmt.Printf("items:    %d\n", ix.Items())
				fmt.Printf("unique:   %d\n", ix.Unique())
				fmt.Printf("utilized: %d\n", ix.Utilized())
				fmt.Printf("capacity: %d\n", ix.Capacity())
			},
		},
		"help": {
			desc: "help - print this list",
			do: func(_ *scmindex.Index, _ []string) {
				printHelp()
			},
		},
	}
}

func printHelp() {
	keywords := lo.Keys(commands)
	sort.Strings(keywords)
	fmt.Println("available commands:")
	for _, keyword := range keywords {
		fmt.Printf("  %s\n", commands[keyword].desc)
	}
	fmt.Println("  quit - close the index and leave")
}
