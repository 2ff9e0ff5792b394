package platform

import "strings"

// QuoteShellArg single-quotes an argument for safe inclusion in a shell
// command line, escaping embedded single quotes with the standard
// close-quote/escaped-quote/reopen-quote trick. Every adapter that
// assembles a remote command line (the GPU-rental bootstrap script, the
// IaaS docker run invocation) builds it as an explicit []string argument
// vector and quotes each element with this helper rather than
// concatenating strings directly, fixing the shell-escaping fragility the
// spec calls out as an open question.
func QuoteShellArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// JoinShellCommand quotes and joins an argument vector into a single
// shell command line.
func JoinShellCommand(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = QuoteShellArg(a)
	}
	return strings.Join(quoted, " ")
}
