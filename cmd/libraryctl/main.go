// Command libraryctl is a line-oriented terminal front-end of the library catalog.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeamon/library-catalog/client"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is read from the LCAT_CLIENT_* environment variables.
type Config struct {
	APIURL   string        `envconfig:"API_URL" default:"http://127.0.0.1:5000"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"5s"`
	RPS      int           `envconfig:"RPS" default:"0"`
	LogLevel zapcore.Level `envconfig:"LOG_LEVEL" default:"info"`
}

const helpText = `commands:
  title <text>   set the title of the next book
  author <text>  set the author of the next book
  add            add the book to the catalog
  toggle <id>    issue or return a book
  list           reload the catalog
  help           show this help
  quit           exit
`

func main() {
	if err := godotenv.Load("./config.env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal("failed to load config.env: ", err)
	}
	var config Config
	if err := envconfig.Process("LCAT_CLIENT", &config); err != nil {
		log.Fatal("failed to load client configurations: ", err)
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(config.LogLevel)
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatal("failed to setup logging: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	api := client.New(logger, client.Config{BaseURL: config.APIURL, Timeout: config.Timeout, RPS: config.RPS})
	catalog := client.NewCatalog(logger, api)
	if err = run(context.Background(), config.Timeout, catalog, os.Stdin, os.Stdout); err != nil {
		logger.Fatal("libraryctl stopped", zap.Error(err))
	}
}

// run mounts the catalog then executes commands read from in
// until quit or end of input. The view is rendered after each command.
func run(ctx context.Context, timeout time.Duration, catalog *client.Catalog, in io.Reader, out io.Writer) error {
	call := func(f func(context.Context)) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		f(cctx)
	}

	call(catalog.Mount)
	if err := catalog.Render(out); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "":
			continue
		case "title":
			catalog.SetTitle(arg)
		case "author":
			catalog.SetAuthor(arg)
		case "add":
			call(catalog.Submit)
		case "toggle":
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				fmt.Fprintf(out, "invalid book id %q\n", arg)
				continue
			}
			call(func(c context.Context) { catalog.Toggle(c, id) })
		case "list":
			call(catalog.Refresh)
		case "help":
			fmt.Fprint(out, helpText)
			continue
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(out, "unknown command %q. type help.\n", cmd)
			continue
		}
		if err := catalog.Render(out); err != nil {
			return err
		}
	}
}
