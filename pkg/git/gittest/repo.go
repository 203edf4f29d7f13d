package gittest

import (
	"bytes"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/fluxcd/compose-sync/pkg/git"
)

const (
	// ComposePath is where Repo puts the compose file
	ComposePath = "deploy/docker-compose.yml"

	// Compose is the compose file Repo starts with
	Compose = `version: "3.7"
services:
  web:
    image: org/web:v1 # pinned by compose-sync
    ports:
      - "80:80"
  worker:
    image: org/worker:v3
`
)

// TestConfig is a git config suitable for a checkout of Repo.
var TestConfig = git.Config{
	Branch:    "master",
	Path:      ComposePath,
	UserName:  "compose-sync",
	UserEmail: "compose-sync@example.com",
}

// Upstream is a bare git repo, standing in for the remote.
type Upstream struct {
	t   *testing.T
	dir string
}

// Repo creates a new clone-able git repo, pre-populated with a compose
// file and a couple of commits. It is removed when the test finishes.
func Repo(t *testing.T) *Upstream {
	newDir, err := ioutil.TempDir("", "compose-sync-gittest")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(newDir) })

	filesDir := filepath.Join(newDir, "files")
	gitDir := filepath.Join(newDir, "git")
	if err := os.MkdirAll(filepath.Join(filesDir, filepath.Dir(ComposePath)), 0755); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{
		{"-C", filesDir, "init"},
		{"-C", filesDir, "symbolic-ref", "HEAD", "refs/heads/master"},
		{"-C", filesDir, "config", "--local", "user.email", "example@example.com"},
		{"-C", filesDir, "config", "--local", "user.name", "example"},
	} {
		mustGit(t, args...)
	}

	if err := ioutil.WriteFile(filepath.Join(filesDir, "README.md"), []byte("# deploy\n"), 0644); err != nil {
		t.Fatal(err)
	}
	mustGit(t, "-C", filesDir, "add", "--all")
	mustGit(t, "-C", filesDir, "commit", "-m", "Initial revision")

	if err := ioutil.WriteFile(filepath.Join(filesDir, ComposePath), []byte(Compose), 0644); err != nil {
		t.Fatal(err)
	}
	mustGit(t, "-C", filesDir, "add", "--all")
	mustGit(t, "-C", filesDir, "commit", "-m", "Add compose file")

	mustGit(t, "clone", "--bare", filesDir, gitDir)
	return &Upstream{t: t, dir: gitDir}
}

// Remote returns a remote for cloning the upstream repo.
func (u *Upstream) Remote() git.Remote {
	return git.Remote{URL: "file://" + u.dir}
}

// File returns the content of path at the head of the upstream branch.
func (u *Upstream) File(path string) string {
	return u.git("--git-dir", u.dir, "show", "master:"+path)
}

// CommitCount returns the number of commits on the upstream branch.
func (u *Upstream) CommitCount() int {
	n, err := strconv.Atoi(strings.TrimSpace(u.git("--git-dir", u.dir, "rev-list", "--count", "master")))
	if err != nil {
		u.t.Fatal(err)
	}
	return n
}

// Revision returns the commit at the head of the upstream branch.
func (u *Upstream) Revision() string {
	return strings.TrimSpace(u.git("--git-dir", u.dir, "rev-parse", "master"))
}

// LastMessage returns the subject of the latest upstream commit.
func (u *Upstream) LastMessage() string {
	return strings.TrimSpace(u.git("--git-dir", u.dir, "log", "-1", "--format=%s", "master"))
}

// LastFiles lists the files changed by the latest upstream commit.
func (u *Upstream) LastFiles() []string {
	out := strings.TrimSpace(u.git("--git-dir", u.dir, "show", "--name-only", "--format=", "master"))
	return strings.Split(out, "\n")
}

// Push commits the given content to path, as someone other than
// compose-sync would, and pushes it to the upstream.
func (u *Upstream) Push(path, content, message string) {
	dir, err := ioutil.TempDir("", "compose-sync-gittest-other")
	if err != nil {
		u.t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	mustGit(u.t, "clone", u.dir, dir)
	mustGit(u.t, "-C", dir, "config", "--local", "user.email", "other@example.com")
	mustGit(u.t, "-C", dir, "config", "--local", "user.name", "other")
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(path)), 0755); err != nil {
		u.t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, path), []byte(content), 0644); err != nil {
		u.t.Fatal(err)
	}
	mustGit(u.t, "-C", dir, "add", "--all")
	mustGit(u.t, "-C", dir, "commit", "-m", message)
	mustGit(u.t, "-C", dir, "push", "origin", "master")
}

func (u *Upstream) git(args ...string) string {
	return mustGit(u.t, args...)
}

func mustGit(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	c := exec.Command("git", args...)
	c.Stdout = out
	c.Stderr = stderr
	if err := c.Run(); err != nil {
		t.Fatalf("git %s: %v\n%s%s", strings.Join(args, " "), err, out.String(), stderr.String())
	}
	return out.String()
}
