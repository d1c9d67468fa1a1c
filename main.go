// Command websearch runs one role of the distributed search engine.
package main

import "github.com/JakeFAU/websearch/cmd"

func main() {
	cmd.Execute()
}
