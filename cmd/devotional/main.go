// Command devotional serves and prints daily devotionals for random Bible
// verses, cached for seven days and available offline.
//
// Usage:
//
//	devotional serve                       # run the HTTP API
//	devotional random                      # devotional for a random verse
//	devotional fetch Psalms 23 1 "The LORD is my shepherd"
//	devotional cache list                  # cached references
//	devotional cache evict "Psalms 23:1"
//
// GROQ_API_KEY and IQBIBLE_API_KEY are read from the environment or .env.
// GENERATOR_TYPE=ollama generates with a local Ollama server instead.
package main

import (
	"os"

	"devotional/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
