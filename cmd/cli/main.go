// Command libris is a CLI client for the libris lending service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/and161185/libris/internal/convert"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "libris")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "libris")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", errors.New("no token (login required)")
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

const usageText = `libris CLI
Usage:
  libris [-addr URL] [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  register   -u <username> -p <password>
  login      -u <username> -p <password>          (saves token)
  books      [-q text] [-category slug] [-author id] [-available] [-sort title|-created_at|year] [-limit n] [-offset n]
  book       -id <book id>
  borrow     -book <book id>
  return     -id <record id>
  loan       -id <record id>
  mine                                            (active borrows)
  history
  can-review -book <book id>
  review     -book <book id> -stars 1..5 [-comment text]
  reviews    -book <book id>
  profile    [-name text] [-phone text]            (shows the profile, or updates the given fields)
  contact    -name <name> -email <email> -subject <text> -message <text>
`

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches one subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	gfs := flag.NewFlagSet("libris", flag.ContinueOnError)
	gfs.SetOutput(stderr)
	addr := gfs.String("addr", envOr("LIBRIS_ADDR", "http://localhost:8080"), "server base URL")
	caPath := gfs.String("cacert", "", "CA cert (PEM)")
	insecure := gfs.Bool("insecure", false, "skip cert verify (dev)")
	gfs.Usage = func() { fmt.Fprint(stderr, usageText) }
	if err := gfs.Parse(args); err != nil {
		return 2
	}
	if gfs.NArg() < 1 {
		gfs.Usage()
		return 2
	}
	cmd, rest := gfs.Arg(0), gfs.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cmd == "version" {
		fmt.Fprintf(stdout, "libris %s (%s)\n", version, buildDate)
		return 0
	}

	var token string
	switch cmd {
	case "register", "login", "books", "book", "reviews", "contact":
	default:
		t, err := loadToken()
		if err != nil {
			return fail(stderr, err)
		}
		token = t
	}
	c, err := newClient(*addr, *caPath, *insecure, token)
	if err != nil {
		return fail(stderr, err)
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch cmd {
	case "register", "login":
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *u == "" || *p == "" {
			fmt.Fprintln(stderr, "need -u and -p")
			return 1
		}
		if cmd == "register" {
			out, err := c.register(ctx, *u, *p)
			if err != nil {
				return fail(stderr, err)
			}
			fmt.Fprintln(stdout, out.UserID)
			return 0
		}
		out, err := c.login(ctx, *u, *p)
		if err != nil {
			return fail(stderr, err)
		}
		if err := saveToken(tokenFile{AccessToken: out.AccessToken, ExpiresAt: out.ExpiresAt, Username: out.Username}); err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, "ok")

	case "books":
		q := fs.String("q", "", "title contains")
		cat := fs.String("category", "", "category slug")
		author := fs.String("author", "", "author id")
		avail := fs.Bool("available", false, "only books with a free copy")
		sort := fs.String("sort", "", "title, -created_at or year")
		limit := fs.Int("limit", 0, "page size")
		offset := fs.Int("offset", 0, "page offset")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		v := url.Values{}
		setIf(v, "q", *q)
		setIf(v, "category", *cat)
		setIf(v, "author", *author)
		setIf(v, "sort", *sort)
		if *avail {
			v.Set("available", "true")
		}
		if *limit > 0 {
			v.Set("limit", strconv.Itoa(*limit))
		}
		if *offset > 0 {
			v.Set("offset", strconv.Itoa(*offset))
		}
		out, err := c.books(ctx, v)
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, out)

	case "book":
		id := fs.String("id", "", "book id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *id == "" {
			fmt.Fprintln(stderr, "need -id")
			return 1
		}
		out, err := c.book(ctx, *id)
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, out)

	case "borrow":
		book := fs.String("book", "", "book id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *book == "" {
			fmt.Fprintln(stderr, "need -book")
			return 1
		}
		out, err := c.borrow(ctx, *book)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "record=%s due=%s\n", out.ID, out.DueAt.Local().Format(time.DateOnly))

	case "return":
		id := fs.String("id", "", "record id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *id == "" {
			fmt.Fprintln(stderr, "need -id")
			return 1
		}
		out, err := c.giveBack(ctx, *id)
		if err != nil {
			return fail(stderr, err)
		}
		if out.AlreadyReturned {
			fmt.Fprintln(stdout, "already returned")
			return 0
		}
		fmt.Fprintln(stdout, "returned")

	case "loan":
		id := fs.String("id", "", "record id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *id == "" {
			fmt.Fprintln(stderr, "need -id")
			return 1
		}
		out, err := c.record(ctx, *id)
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, out)

	case "mine", "history":
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		list := c.mine
		if cmd == "history" {
			list = c.history
		}
		out, err := list(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		for _, r := range out {
			fmt.Fprintf(stdout, "%s  %-8s  %3dd  %s  %s\n",
				r.ID, r.Status, r.RemainingDays, r.DueAt.Local().Format(time.DateOnly), r.BookTitle)
		}

	case "can-review":
		book := fs.String("book", "", "book id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		out, err := c.canReview(ctx, *book)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, out.CanReview)

	case "review":
		book := fs.String("book", "", "book id")
		stars := fs.Int("stars", 0, "rating 1..5")
		comment := fs.String("comment", "", "comment")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *book == "" {
			fmt.Fprintln(stderr, "need -book")
			return 1
		}
		out, err := c.review(ctx, *book, *stars, *comment)
		if err != nil {
			return fail(stderr, err)
		}
		if out.Created {
			fmt.Fprintln(stdout, "review created")
		} else {
			fmt.Fprintln(stdout, "review updated")
		}

	case "reviews":
		book := fs.String("book", "", "book id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		rs, sum, err := c.reviews(ctx, *book)
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, map[string]any{"summary": sum, "reviews": rs})

	case "profile":
		name := fs.String("name", "", "full name")
		phone := fs.String("phone", "", "phone number")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		cur, err := c.profile(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if len(set) > 0 {
			req := convert.ProfileRequest{FullName: cur.FullName, PhoneNumber: cur.PhoneNumber}
			if set["name"] {
				req.FullName = *name
			}
			if set["phone"] {
				req.PhoneNumber = *phone
			}
			if cur, err = c.updateProfile(ctx, req); err != nil {
				return fail(stderr, err)
			}
		}
		printJSON(stdout, cur)

	case "contact":
		in := convert.ContactRequest{}
		fs.StringVar(&in.Name, "name", "", "your name")
		fs.StringVar(&in.Email, "email", "", "reply address")
		fs.StringVar(&in.Subject, "subject", "", "subject")
		fs.StringVar(&in.Message, "message", "", "message")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if _, err := c.contact(ctx, in); err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, "message sent")

	default:
		gfs.Usage()
		return 2
	}
	return 0
}

// ---- helpers ----

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setIf(v url.Values, k, s string) {
	if s != "" {
		v.Set(k, s)
	}
}

func fail(w io.Writer, err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(w, "error: code=%s msg=%s\n", ae.Code, ae.Msg)
		return 1
	}
	fmt.Fprintln(w, err)
	return 1
}
