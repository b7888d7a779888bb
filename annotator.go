// Package annotator reviews model-proposed evidence bounding boxes on medical
// images and records one decision per evidence phrase.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		annotator "github.com/medveriground/bbox-annotator"
//	)
//
//	func main() {
//		ctx := context.Background()
//		sess, err := annotator.Open(ctx, annotator.Request{
//			ProposalsPath: "proposals.json",
//			ImagesDir:     "images",
//			AnnotatorID:   "dr_a",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// accept every proposal as it stands
//		for sess.State() == annotator.Active {
//			out, err := sess.Accept(ctx)
//			if err != nil {
//				log.Fatal(err)
//			}
//			fmt.Println(out.Persist.Message)
//		}
//	}
//
// The module consists of these main components:
//
//  1. Session (pkg/session): the review state machine
//  2. Geometry (pkg/geometry): normalized and pixel box conversions
//  3. Record (pkg/record): decision records and grounding tiers
//  4. Store (pkg/store, pkg/github): local files and remote repository saves
//  5. Proposer (pkg/proposer): vision model box proposals
//
// The cmd directory holds the HTTP annotation server, the proposer and the
// export tool.
package annotator

import (
	"context"

	"github.com/medveriground/bbox-annotator/pkg/export"
	"github.com/medveriground/bbox-annotator/pkg/session"
	"github.com/medveriground/bbox-annotator/pkg/store"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// Version of the annotator
const Version = "1.0.0"

type (
	// Request names the inputs of a session
	Request = session.LoadRequest
	// Session is one annotator's pass over a Proposal Set
	Session = session.Session
	// Record is one persisted decision
	Record = types.Record
)

const (
	Uninitialized = session.Uninitialized
	Active        = session.Active
	Complete      = session.Complete
)

// Open creates a session saving to a local file in outputDir (the working
// directory when empty) and loads req into it. Options override the
// defaults, e.g. session.WithPersister for a remote store.
func Open(ctx context.Context, req Request, opts ...session.Option) (*Session, error) {
	return OpenIn(ctx, "", req, opts...)
}

// OpenIn is Open with an explicit directory for the local annotation file
func OpenIn(ctx context.Context, outputDir string, req Request, opts ...session.Option) (*Session, error) {
	all := append([]session.Option{session.WithLocalStore(store.NewLocalStore(outputDir))}, opts...)
	sess := session.New(all...)
	if err := sess.Load(ctx, req); err != nil {
		return nil, err
	}
	return sess, nil
}

// Summarize counts the decisions of a session
func Summarize(sess *Session) export.Stats {
	return export.Summarize(sess.Records())
}

// GetVersion returns the module version
func GetVersion() string {
	return Version
}
