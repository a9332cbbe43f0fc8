package types

import "hf_downloader/internal/config"

// ConvertTransferSettings converts the app-level settings to the engine-level
// TransferConfig.
func ConvertTransferSettings(s *config.Settings) *TransferConfig {
	if s == nil {
		return DefaultTransferConfig()
	}
	return &TransferConfig{
		Aria2Path:      s.Transfer.Aria2Path,
		Connections:    s.Transfer.Connections,
		Segments:       s.Transfer.Segments,
		ParallelFiles:  s.Transfer.ParallelFiles,
		PollInterval:   s.Transfer.PollInterval,
		TerminateGrace: s.Transfer.TerminateGrace,
		Endpoint:       s.Hub.Endpoint,
		Revision:       s.Hub.Revision,
		Token:          s.Hub.Token,
	}
}
