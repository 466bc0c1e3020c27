//go:build !tinygo

// Command sysabi prints the syscall table and checks whether applets built
// against a given ABI version can run on this kernel.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"firmcore/sys/applet"
	"firmcore/sys/syscall"
)

func main() {
	var check string
	var quiet bool
	flag.StringVar(&check, "check", "", "Applet ABI version to check against the kernel.")
	flag.BoolVar(&quiet, "q", false, "Do not print the syscall table.")
	flag.Parse()

	if !quiet {
		printTable(os.Stdout)
	}
	if check == "" {
		return
	}
	if err := applet.VerifyHeader(applet.Header{Name: "applet", ABI: check}, syscall.ABIVersion); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, applet.ErrIncompatibleABI) {
			os.Exit(1)
		}
		os.Exit(2)
	}
	fmt.Printf("applet abi %s runs on kernel abi %s\n", check, syscall.ABIVersion)
}

func printTable(out io.Writer) {
	fmt.Fprintf(out, "kernel abi %s\n\n", syscall.ABIVersion)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUM\tNAME")
	for _, n := range syscall.Numbers() {
		fmt.Fprintf(w, "%#04x\t%s\n", uint32(n), n)
	}
	w.Flush()
}
