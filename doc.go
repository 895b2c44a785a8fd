// Package admsrelay forwards biometric access-control records to webhook endpoints.
//
// Typical flow:
//  1. A Poller reads the Checkpoint cursor, fetches up to 30 newer records from a
//     RecordSource, builds the canonical Payload of each and hands it to the Dispatcher.
//  2. The Dispatcher signs the payload and sends it to every destination; a failed
//     delivery is persisted in the Queue as a DeliveryAttempt.
//  3. A RetryWorker redelivers queued attempts verbatim, deleting them on success and
//     dead-lettering them once the retry budget is spent.
//  4. A Scheduler runs the Poller and the RetryWorker in independent loops until shutdown.
//
// For the MySQL queue see the mysql package; checkpoint backends live in checkpoint,
// transports in webhook and kafka, and the Telegram notifier in telegram.
package admsrelay
