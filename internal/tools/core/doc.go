// Package core provides the built-in directives: sandboxed file operations,
// HELP, and the CANCEL/PAUSE control directives.
//
// Directives (aliases in parentheses):
//   - WRITE_FILE: write content to a sandbox file
//   - APPEND_FILE: append to an existing sandbox file
//   - READ_FILE (CAT): first 10 lines of a sandbox file
//   - READ_LINES (RL): an inclusive line range
//   - LIST_OUTPUTS (LS): list the sandbox
//   - DELETE_FILE (RM): remove a sandbox file
//   - WORD_COUNT (WC): line and word counts
//   - HELP: directive catalog and host platform
//   - CANCEL, PAUSE: control signals for the loop driver
package core
