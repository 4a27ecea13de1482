// Uploads verification reports to S3-compatible object storage.
//
// Reports land at <prefix>/<recipe>/<build-id>/report.json in the configured
// bucket. Credentials are read from CRUXGATE_S3_ACCESS_KEY and
// CRUXGATE_S3_SECRET_KEY; they never appear in the recipe.
package publish
