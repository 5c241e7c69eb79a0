// Catena CLI - REPL and file runner for the Catena core.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/tliron/commonlog"

	"github.com/catena-lang/catena/compiler"
	"github.com/catena-lang/catena/manifest"
	"github.com/catena-lang/catena/store"
	"github.com/catena-lang/catena/vm"

	_ "github.com/tliron/commonlog/simple"
)

const (
	appName     = "catena"
	historyFile = ".catena_history"
	promptMain  = "catena> "
	banner      = "Catena — Ctrl+D to exit. Type :help for commands."
	helpText    = `
REPL commands:
  :help             Show this help
  :quit / :exit     Exit the REPL
  :stack            Show the data stack
  :words            List dictionary entries
  :reset            Unwind the stacks to top level
  :save <name>      Save the session image to the store
  :load <name>      Restore a session image from the store
  :sessions         List stored session images
  :write [file]     Write the session image to a file
  :read <file>      Restore a session image from a file
`
)

var log = commonlog.GetLogger(appName)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 = quiet)")
	evalStr := flag.String("e", "", "Evaluate the given Catena snippet and exit")
	interactive := flag.Bool("i", false, "Start interactive REPL after loading files")
	imagePath := flag.String("image", "", "Restore a session image file before anything else")
	storePath := flag.String("store", "", "Session store path (default ~/.catena/sessions.db)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: catena [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs Catena source files, or starts a REPL when no files are given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  catena                      # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  catena prog.ctn             # Run a file\n")
		fmt.Fprintf(os.Stderr, "  catena -e '2 3 + .s'        # Evaluate a snippet\n")
		fmt.Fprintf(os.Stderr, "  catena -image dev.cimg -i   # Resume an image in the REPL\n")
	}
	flag.Parse()
	commonlog.Configure(*verbose, nil)

	session, err := newSession(*imagePath, *storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
	defer session.close()

	for _, path := range flag.Args() {
		if err := session.runFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			os.Exit(1)
		}
	}

	switch {
	case *evalStr != "":
		if err := session.eval(*evalStr); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			os.Exit(1)
		}
		session.printStack()
	case len(flag.Args()) == 0 || *interactive:
		session.repl()
	}
}

// session ties one machine to its compiler, manifest and image store.
type session struct {
	machine  *vm.VM
	compiler *compiler.Compiler
	man      *manifest.Manifest
	images   *store.Store
}

func newSession(imagePath, storePath string) (*session, error) {
	man, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if man == nil {
		man = manifest.Default(".")
	} else {
		log.Infof("using manifest in %s", man.Dir)
	}

	machine := vm.New(man.ToConfig())
	s := &session{
		machine:  machine,
		compiler: compiler.New(machine),
		man:      man,
	}

	if imagePath != "" {
		img, err := machine.LoadImage(imagePath)
		if err != nil {
			return nil, err
		}
		log.Infof("restored image %s (%d code bytes)", img.ID, len(img.Code))
	}

	if storePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home dir: %w", err)
		}
		storePath = filepath.Join(home, ".catena", "sessions.db")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return nil, err
	}
	s.images, err = store.Open(storePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.images != nil {
		s.images.Close()
	}
}

// eval compiles and runs one source unit. Failed compiles reclaim their
// scratch code; failed runs unwind the stacks but keep definitions.
func (s *session) eval(src string) error {
	here := s.machine.Here()
	entry, err := s.compiler.Compile(src)
	if err != nil {
		_ = s.machine.SetHere(here)
		return err
	}
	if err := s.machine.Run(entry); err != nil {
		s.machine.Reset()
		return err
	}
	return nil
}

func (s *session) runFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	log.Infof("running %s (%d bytes)", path, len(src))
	if err := s.eval(string(src)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ---- REPL ------------------------------------------------------------------

func (s *session) repl() {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	// Load history (best-effort)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(promptMain)
		if err != nil {
			// Ctrl+D or closed input ends the session; Ctrl+C just
			// abandons the current line.
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			fmt.Println()
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(trimmed, ":") {
			if done := s.command(trimmed); done {
				break
			}
			continue
		}

		if err := s.eval(line); err != nil {
			fmt.Println(err)
			continue
		}
		s.printStack()
	}

	// Persist history (best-effort)
	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
}

// command handles the :-prefixed REPL commands. It reports whether the REPL
// should exit.
func (s *session) command(line string) (exit bool) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case ":help":
		fmt.Print(helpText)

	case ":quit", ":exit":
		return true

	case ":stack":
		s.printStack()

	case ":words":
		for _, e := range s.machine.Dict().All() {
			kind := "code"
			if e.Ref.IsBuiltin() {
				kind = "builtin"
			}
			fmt.Printf("  %-16s %s\n", e.Name, kind)
		}

	case ":reset":
		s.machine.Reset()
		fmt.Println("ok")

	case ":save":
		if arg == "" {
			fmt.Println("usage: :save <name>")
			return false
		}
		img, err := s.machine.Snapshot()
		if err == nil {
			err = s.images.Save(arg, img)
		}
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("saved %q (%d code bytes)\n", arg, len(img.Code))

	case ":load":
		if arg == "" {
			fmt.Println("usage: :load <name>")
			return false
		}
		img, err := s.images.Load(arg)
		if err == nil {
			err = s.machine.Restore(img)
		}
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("restored %q\n", arg)

	case ":sessions":
		infos, err := s.images.List()
		if err != nil {
			fmt.Println(err)
			return false
		}
		for _, info := range infos {
			fmt.Printf("  %-16s %6d bytes  %s\n",
				info.Name, info.Size, info.Created.Format("2006-01-02 15:04"))
		}

	case ":write":
		path := arg
		if path == "" {
			path = s.man.ImagePath()
		}
		if path == "" {
			fmt.Println("usage: :write <file> (no image output in catena.toml)")
			return false
		}
		img, err := s.machine.SaveImage(path)
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("wrote %s (%d code bytes)\n", path, len(img.Code))

	case ":read":
		if arg == "" {
			fmt.Println("usage: :read <file>")
			return false
		}
		if _, err := s.machine.LoadImage(arg); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("restored %s\n", arg)

	default:
		fmt.Printf("unknown command %s (:help for help)\n", cmd)
	}
	return false
}

// ---- stack display ---------------------------------------------------------

// printStack renders the data stack top first, Forth-style.
func (s *session) printStack() {
	depth := s.machine.Data().Depth()
	if depth == 0 {
		fmt.Println("ok")
		return
	}
	var parts []string
	for i := 0; i < depth && i < 8; i++ {
		v, err := s.machine.Data().PeekSlot(i)
		if err != nil {
			break
		}
		parts = append(parts, s.render(v))
	}
	if depth > 8 {
		parts = append(parts, "...")
	}
	fmt.Printf("ok <%d> %s\n", depth, strings.Join(parts, " "))
}

func (s *session) render(v vm.Value) string {
	if v.IsString() {
		return fmt.Sprintf("%q", s.machine.Strings().Name(v.Payload()))
	}
	if v.IsBuiltin() {
		if name := s.machine.BuiltinName(v.Payload()); name != "" {
			return "&" + name
		}
	}
	return v.String()
}
