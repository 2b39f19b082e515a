// Command mandel renders the Mandelbrot set on a pool of workers.
package main

import "os"

func main() {
	os.Exit(Execute(os.Args[1:]))
}
