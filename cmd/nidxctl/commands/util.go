package commands

import "fmt"

func printInfo(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
