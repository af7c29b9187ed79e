package main

import (
	"log"
)

var (
	GitCommit string
	GitTag    string
	BuildTime string
)

//	@title			Library Catalog API
//	@version		1.0
//	@description	Catalog of library books which can be listed, added and issued or returned.
//	@host			localhost:5000
//	@BasePath		/
func main() {
	app, err := NewApp()
	if err != nil {
		log.Fatal("library catalog failed to initialize: ", err)
	}
	if err = app.Run(); err != nil {
		log.Fatal("library catalog exited. check logs for more details: ", err)
	}
}
