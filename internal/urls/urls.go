package urls

// Repository is the project home
const Repository = "https://github.com/muurk/dosctl"

// Troubleshooting covers discovery problems: multicast, firewalls and
// access points that isolate clients.
const Troubleshooting = Repository + "/blob/main/docs/troubleshooting.md"

// Issues is where unexpected device documents should be reported,
// together with the output of `dosctl info --json`.
const Issues = Repository + "/issues"
