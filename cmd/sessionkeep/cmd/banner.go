package cmd

import (
	"fmt"
	"io"
)

const banner = `
                       _             _                   
  ___  ___  ___ ___(_) ___  _ __ | | _____  ___ _ __  
 / __|/ _ \/ __/ __| |/ _ \| '_ \| |/ / _ \/ _ \ '_ \ 
 \__ \  __/\__ \__ \ | (_) | | | |   <  __/  __/ |_) |
 |___/\___||___/___/_|\___/|_| |_|_|\_\___|\___| .__/ 
                                               |_|    
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Session Token Cache - Version %s\x1b[0m\n\n", Version)
}
