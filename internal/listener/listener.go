// Package listener owns the readline prompt. Background events (mission
// progress, cooldown notices) are printed above the prompt line so the
// user's partial input is never clobbered.
package listener

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// ErrClosed is returned by ReadLine when the terminal is gone or the user
// sent EOF.
var ErrClosed = errors.New("listener: input closed")

var (
	rl        *readline.Instance
	mu        sync.Mutex
	holdAsync bool
	held      []string
)

func Init(prompt string) error {
	var err error
	rl, err = readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "",
		EOFPrompt:       "",
	})
	return err
}

func Close() {
	if rl != nil {
		_ = rl.Close()
	}
}

// ReadLine blocks for the next command line. It returns ErrClosed on EOF
// so the caller can shut down cleanly.
func ReadLine() (string, error) {
	if rl == nil {
		return "", ErrClosed
	}
	line, err := rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", nil
		}
		return "", ErrClosed
	}
	return strings.TrimSpace(line), nil
}

// Println writes a block of output above the prompt.
func Println(s string) {
	mu.Lock()
	defer mu.Unlock()
	printAboveUnlocked(s)
}

// Notify prints an asynchronous event above the prompt. While an
// interactive exchange is in progress the line is held and flushed
// afterwards.
func Notify(s string) {
	mu.Lock()
	defer mu.Unlock()
	if holdAsync {
		held = append(held, s)
		return
	}
	printAboveUnlocked(s)
}

// AskYesNo runs a blocking confirmation. Async notifications are held
// until the user answers.
func AskYesNo(question string) bool {
	beginInteractive()
	defer endInteractive()

	Println(question + " [y/n]")

	for {
		ans := confirm("> ")
		switch ans {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		Println("Please answer y/n.")
	}
}

func beginInteractive() {
	mu.Lock()
	holdAsync = true
	mu.Unlock()
}

func endInteractive() {
	mu.Lock()
	defer mu.Unlock()
	holdAsync = false
	for _, s := range held {
		printAboveUnlocked(s)
	}
	held = nil
}

func confirm(prompt string) string {
	mu.Lock()
	old := rl.Config.Prompt
	rl.SetPrompt(prompt)
	mu.Unlock()

	line, err := rl.Readline()
	if err != nil {
		line = ""
	}
	ans := strings.TrimSpace(strings.ToLower(line))

	mu.Lock()
	rl.SetPrompt(old)
	mu.Unlock()
	return ans
}

func printAboveUnlocked(s string) {
	if rl == nil {
		fmt.Println(s)
		return
	}
	_, _ = rl.Write([]byte("\r\n" + s + "\r\n"))
	rl.Refresh()
}
