package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload the build directory to a GCS bucket or a local mirror",
		Long: `Publishes every file of the production build. The destination is
upload.bucket (Google Cloud Storage, default credentials) or upload.local_dir.
With upload.topic set, a JSON notification is published to that Pub/Sub topic
once every object is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store, release, err := appInstance.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			pub, releasePub, err := appInstance.OpenPublisher(cmd.Context())
			if err != nil {
				return err
			}
			defer releasePub()

			uris, err := appInstance.Commands().Upload(cmd.Context(), store, pub)
			if err != nil {
				return err
			}
			for _, uri := range uris {
				appInstance.Logger().Debug("uploaded", zap.String("uri", uri))
			}
			return nil
		},
	}
}
