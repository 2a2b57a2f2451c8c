// appauth-state encodes and decodes application-state blobs, for
// debugging redirect round trips.
package main

import (
	"fmt"
	"os"
	"strings"

	"lds.li/appauth/appstate"
)

func main() {
	if len(os.Args) < 3 {
		usage()
	}

	switch os.Args[1] {
	case "encode":
		st := &appstate.State{}
		for _, arg := range os.Args[2:] {
			k, v, ok := strings.Cut(arg, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "not a key=value pair: %s\n", arg)
				os.Exit(1)
			}
			st.Set(k, v)
		}
		fmt.Println(st.Encode())
	case "decode":
		st, err := appstate.Decode(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "decoding state: %v\n", err)
			os.Exit(1)
		}
		for _, k := range st.Keys() {
			v, _ := st.Get(k)
			fmt.Printf("%s=%s\n", k, v)
		}
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s encode <key=value>... | decode <blob>\n", os.Args[0])
	os.Exit(1)
}
