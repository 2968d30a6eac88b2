// oneccheck pokes the 1C endpoints with hand-supplied employee data, for
// verifying credentials and URLs before pointing the bot at them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bonvoyage09/tardybot/internal/onec"
)

func main() {
	passport := flag.String("passport", "", "passport series+number, e.g. AD1234567")
	birthdate := flag.String("birthdate", "", "birthdate dd.mm.yyyy")
	userID := flag.String("user", "0", "telegram user id to echo to 1C")
	flag.Parse()

	if *passport == "" || *birthdate == "" {
		fmt.Println("usage: oneccheck -passport AD1234567 -birthdate 30.09.2005 [-user 123456789]")
		fmt.Println("reads ONEC_URL, ONEC_SYNC_URL, ONEC_USER, ONEC_PASS from the environment")
		os.Exit(2)
	}

	client := onec.New(
		os.Getenv("ONEC_URL"),
		os.Getenv("ONEC_SYNC_URL"),
		os.Getenv("ONEC_DECISION_URL"),
		os.Getenv("ONEC_USER"),
		os.Getenv("ONEC_PASS"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, ident, raw, err := client.CheckPassport(ctx, *passport, *birthdate, *userID)
	if err != nil {
		fmt.Printf("check_passport: error: %v\n", err)
	} else {
		fmt.Printf("check_passport: status=%d fullName=%q isManager=%v supervisor=%q\n",
			status, ident.FullName, ident.IsManager, ident.SupervisorTGID)
		fmt.Printf("raw: %s\n", raw)
	}

	if os.Getenv("ONEC_SYNC_URL") == "" {
		fmt.Println("sync: skipped (ONEC_SYNC_URL not set)")
		return
	}

	supervisor, err := client.SyncSupervisor(ctx, *passport, *birthdate)
	if err != nil {
		fmt.Printf("sync: error: %v\n", err)
		return
	}
	fmt.Printf("sync: supervisor=%q\n", supervisor)
}
