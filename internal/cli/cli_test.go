package cli_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/evalboard/internal/cli"
	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const corpusFile = "../corpus/testdata/corpus.yaml"

// run executes evalctl with args and returns what it printed.
func run(args ...string) (string, error) {
	cmd := cli.NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv("EVALBOARD_DATABASE_URL", "")

	Convey("Given a fresh database file", t, func() {
		db := "file:" + filepath.Join(t.TempDir(), "evalctl.db")

		Convey("migrate reports the applied schema version", func() {
			out, err := run("migrate", "--db", db)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "schema version")
			So(out, ShouldContainSubstring, "dirty=false")
		})

		Convey("import --dry-run validates without a database", func() {
			out, err := run("import", "--dry-run", corpusFile)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "is valid: 2 subjects, 2 questions")
		})

		Convey("import rejects a missing file", func() {
			_, err := run("import", "--db", db, filepath.Join(t.TempDir(), "missing.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("After importing the corpus", func() {
			out, err := run("import", "--db", db, corpusFile)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "2 subjects, 2 questions")

			Convey("the leaderboard prints a table", func() {
				out, err := run("leaderboard", "--db", db)
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "RANK")
				So(out, ShouldContainSubstring, "SUBJECT")
			})

			Convey("the leaderboard prints JSON", func() {
				out, err := run("leaderboard", "--db", db, "--json")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"dimensions"`)
			})

			Convey("a saved snapshot can be listed, shown and deleted", func() {
				out, err := run("snapshot", "save", "--db", db)
				So(err, ShouldBeNil)
				var id int64
				_, err = fmt.Sscanf(out, "saved snapshot %d", &id)
				So(err, ShouldBeNil)
				So(id, ShouldBeGreaterThan, 0)

				out, err = run("snapshot", "list", "--db", db)
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "manual")
				So(out, ShouldContainSubstring, "operator")

				out, err = run("snapshot", "show", fmt.Sprint(id), "--db", db, "--json")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"metadata"`)

				out, err = run("snapshot", "delete", fmt.Sprint(id), "--db", db)
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "deleted snapshot")

				_, err = run("snapshot", "show", fmt.Sprint(id), "--db", db)
				So(err, ShouldNotBeNil)
			})

			Convey("list filters by day", func() {
				_, err := run("snapshot", "save", "--db", db)
				So(err, ShouldBeNil)
				out, err := run("snapshot", "list", "--db", db, "--date", "1999-01-01")
				So(err, ShouldBeNil)
				So(strings.Count(strings.TrimSpace(out), "\n"), ShouldEqual, 0)
			})
		})
	})

	Convey("Commands that need durable storage fail without a database", t, func() {
		for _, args := range [][]string{
			{"migrate"},
			{"leaderboard"},
			{"snapshot", "list"},
		} {
			_, err := run(args...)
			So(errors.Is(err, cli.ErrNoDatabase), ShouldBeTrue)
		}
	})

	Convey("Bad arguments are rejected", t, func() {
		_, err := run("snapshot", "show", "abc", "--db", "file:"+filepath.Join(t.TempDir(), "x.db"))
		So(err, ShouldNotBeNil)
		_, err = run("snapshot", "list", "--date", "yesterday")
		So(err, ShouldNotBeNil)
	})
}

// hangingClient never answers before its context ends.
type hangingClient struct{ calls atomic.Int32 }

func (c *hangingClient) Generate(ctx context.Context, _ string, _ model.Subject) (string, error) {
	c.calls.Add(1)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestScorerOptions(t *testing.T) {
	Convey("Given a config with a short client timeout", t, func() {
		cfg := config.New()
		cfg.ClientTimeoutMS = 20
		cfg.RatingRetries = 2
		client := &hangingClient{}
		scorer := scoring.NewRetryingScorer(client, cli.ScorerOptions(cfg)...)

		start := time.Now()
		res, err := scorer.Score(context.Background(), scoring.Input{
			Question: model.Question{ID: 1, Type: model.Subjective, Content: "q"},
			Answer:   model.Answer{QuestionID: 1, SubjectID: 2, Content: "a"},
			Raters:   []model.Subject{{ID: 9, Name: "judge"}},
		})

		Convey("Then every rater attempt is cut off at that timeout", func() {
			So(err, ShouldBeNil)
			So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			So(client.calls.Load(), ShouldEqual, int32(2))
			So(res.Verdicts[0].Valid, ShouldBeFalse)
		})
	})
}
