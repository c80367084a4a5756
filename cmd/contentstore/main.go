// Command contentstore serves and inspects the Content and Brief tables.
package main

import "github.com/lowfatcats/contentstore/pkg/cli"

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{Name: "contentstore"}))
}
