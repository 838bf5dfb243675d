// The main package for the site-downloader executable.
package main

import (
	"github.com/JakeFAU/site-downloader/cmd"
)

func main() {
	cmd.Execute()
}
