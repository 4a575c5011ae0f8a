// Package earthengine implements the loss backend on top of the Earth Engine
// REST API. Requests are plain JSON over the authenticated *http.Client that
// google.golang.org/api/transport/http builds from the configured
// credentials.
//
// Reductions are sent to projects.value.compute as expression graphs built
// from the Earth Engine function catalog (Image.load, Image.select,
// Image.eq, Image.pixelArea, Image.reduceRegion and so on). Loss maps are
// produced with projects.thumbnails.create followed by a getPixels download.
//
// Authentication is delegated to the Google client libraries. A Session is
// established once per process; credentials come from an explicit file, the
// GOOGLE_APPLICATION_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS
// environment variables, or Application Default Credentials.
package earthengine
