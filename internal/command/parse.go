package command

import (
	"strings"

	"github.com/google/shlex"
)

// Command is a slash command typed at the prompt.
type Command struct {
	Name string
	Args []string
}

// Parse reports whether input is a slash command and splits it. Java
// comments ("//" and "/*") are not commands. Arguments are split like a
// shell would, so quoted paths keep their spaces; an unbalanced quote falls
// back to splitting on whitespace.
func Parse(input string) (Command, bool) {
	body, ok := strings.CutPrefix(strings.TrimLeft(input, " \t"), "/")
	if !ok || strings.HasPrefix(body, "/") || strings.HasPrefix(body, "*") {
		return Command{}, false
	}
	words, err := shlex.Split(body)
	if err != nil {
		words = strings.Fields(body)
	}
	if len(words) == 0 {
		return Command{Args: []string{}}, true
	}
	return Command{
		Name: strings.ToLower(words[0]),
		Args: append([]string{}, words[1:]...),
	}, true
}
