/*
Package patscan is a cascade-based, multiscale sliding-window scanning library
for locating instances of a pre-trained pattern (for example a face) in a still image.

The scan pipeline builds summary (integral) images for constant-time rectangular
sum queries, runs every candidate sub-window through a chain of cheap pruners,
invokes the trained classifier only on the surviving windows and finally clusters
the accepted raw detections into the final result set.

The package provides a command line interface, supporting various flags for the
scan geometry, the pruning tests and the detection merging policy. To check the
supported commands type:

	$ patscan --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"fmt"
		"os"

		"github.com/esimov/patscan"
		pigo "github.com/esimov/pigo/core"
	)

	func main() {
		img, err := pigo.GetImage("sample.jpg")
		if err != nil {
			fmt.Printf("Error loading the source image: %s", err.Error())
			return
		}

		data, err := os.ReadFile("data/facefinder")
		if err != nil {
			fmt.Printf("Error reading the cascade file: %s", err.Error())
			return
		}
		cascade, err := patscan.UnpackCascade(data)
		if err != nil {
			fmt.Printf("Error unpacking the cascade file: %s", err.Error())
			return
		}

		s := &patscan.Scanner{
			Config:    patscan.DefaultConfig(),
			Evaluator: patscan.NewCascadeClassifier(cascade),
		}

		res, err := s.Detect(img)
		if err != nil {
			fmt.Printf("Error scanning the image: %s", err.Error())
			return
		}
		fmt.Println(res.Detections)
	}
*/
package patscan
