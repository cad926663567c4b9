package notes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notedrop_uploads_total",
		Help: "Uploaded files by outcome.",
	}, []string{"result"})

	likesToggledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notedrop_likes_toggled_total",
		Help: "Like toggles by resulting action.",
	}, []string{"action"})

	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notedrop_notes_deleted_total",
		Help: "Notes deleted by their owners.",
	})

	blobDeleteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notedrop_blob_delete_failures_total",
		Help: "Blob deletions that failed while deleting a note.",
	})

	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notedrop_sweep_deleted_total",
		Help: "Orphan blobs removed by the sweep.",
	})
)
