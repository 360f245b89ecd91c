package manifest

import (
	"fmt"
	"net/url"
)

// Asset type discriminators. Providers register themselves under the
// same keys.
const (
	TypeModrinth      = "modrinth"
	TypeGithub        = "github"
	TypeGithubActions = "github-actions"
	TypeJenkins       = "jenkins"
	TypeURL           = "url"
	TypeNote          = "note"
)

// VersionLatest is the floating version selector.
const VersionLatest = "latest"

// ModrinthAsset downloads a project version from Modrinth.
type ModrinthAsset struct {
	AssetCommon `yaml:",inline"`

	// Version is "latest", a version number, or a version id when
	// VersionIsID is set.
	Version string `yaml:"version" json:"version" validate:"required"`

	// ProjectID is the Modrinth project id or slug.
	ProjectID string `yaml:"project_id" json:"project_id" validate:"required"`

	// Channel restricts versions to a release channel. Empty means the
	// channel is ignored.
	Channel string `yaml:"channel" json:"channel,omitempty" validate:"omitempty,oneof=release beta alpha"`

	// VersionIsID makes Version match against version ids instead of
	// version numbers.
	VersionIsID bool `yaml:"version_is_id" json:"version_is_id,omitempty"`

	// VersionNamePattern filters candidate versions by display name.
	VersionNamePattern *Pattern `yaml:"version_name_pattern" json:"version_name_pattern,omitempty"`

	// IgnoreGameVersion disables filtering by the manifest's game
	// version.
	IgnoreGameVersion bool `yaml:"ignore_game_version" json:"ignore_game_version,omitempty"`
}

func (*ModrinthAsset) Type() string { return TypeModrinth }

func (a *ModrinthAsset) Common() *AssetCommon { return &a.AssetCommon }

func (a *ModrinthAsset) DeriveID() string { return a.ProjectID }

func (a *ModrinthAsset) IsLatest() bool { return a.Version == VersionLatest }

// GithubReleaseAsset downloads assets from a GitHub release.
type GithubReleaseAsset struct {
	AssetCommon `yaml:",inline"`

	// Version is "latest" or a release tag.
	Version string `yaml:"version" json:"version" validate:"required"`

	// Repository is the "owner/name" repository slug.
	Repository string `yaml:"repository" json:"repository" validate:"required"`
}

func (*GithubReleaseAsset) Type() string { return TypeGithub }

func (a *GithubReleaseAsset) Common() *AssetCommon { return &a.AssetCommon }

func (a *GithubReleaseAsset) DeriveID() string { return a.Repository }

func (a *GithubReleaseAsset) IsLatest() bool { return a.Version == VersionLatest }

// GithubActionsAsset downloads artifacts from a GitHub Actions workflow
// run.
type GithubActionsAsset struct {
	AssetCommon `yaml:",inline"`

	// Version is "latest" or a run number.
	Version BuildSelector `yaml:"version" json:"version"`

	// Repository is the "owner/name" repository slug.
	Repository string `yaml:"repository" json:"repository" validate:"required"`

	// Branch selects the branch whose runs are considered.
	Branch string `yaml:"branch" json:"branch"`

	// Workflow is the workflow file name or id.
	Workflow string `yaml:"workflow" json:"workflow" validate:"required"`

	// NamePattern filters artifact names. All artifacts are downloaded
	// when unset.
	NamePattern *Pattern `yaml:"name_pattern" json:"name_pattern,omitempty"`
}

func (*GithubActionsAsset) Type() string { return TypeGithubActions }

func (a *GithubActionsAsset) Common() *AssetCommon { return &a.AssetCommon }

func (a *GithubActionsAsset) DeriveID() string {
	return a.Repository + "/" + a.Workflow + "@" + a.Branch
}

func (a *GithubActionsAsset) IsLatest() bool { return a.Version.Latest }

// JenkinsAsset downloads build artifacts from a Jenkins job.
type JenkinsAsset struct {
	AssetCommon `yaml:",inline"`

	// Version is "latest" or a build number.
	Version BuildSelector `yaml:"version" json:"version"`

	// URL points at the Jenkins instance.
	URL string `yaml:"url" json:"url" validate:"required,url"`

	// Job is the job name.
	Job string `yaml:"job" json:"job" validate:"required"`
}

func (*JenkinsAsset) Type() string { return TypeJenkins }

func (a *JenkinsAsset) Common() *AssetCommon { return &a.AssetCommon }

func (a *JenkinsAsset) DeriveID() string {
	host := "Unknown"
	if u, err := url.Parse(a.URL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("%s@%s", a.Job, host)
}

func (a *JenkinsAsset) IsLatest() bool { return a.Version.Latest }

// DirectURLAsset downloads a single file from a fixed URL.
type DirectURLAsset struct {
	AssetCommon `yaml:",inline"`

	// Version is informational for direct downloads; the URL is the
	// identity.
	Version string `yaml:"version" json:"version,omitempty"`

	// URL is the download location.
	URL string `yaml:"url" json:"url" validate:"required,url"`

	// FileName overrides the file name derived from the URL path.
	FileName string `yaml:"file_name" json:"file_name,omitempty"`
}

func (*DirectURLAsset) Type() string { return TypeURL }

func (a *DirectURLAsset) Common() *AssetCommon { return &a.AssetCommon }

func (a *DirectURLAsset) DeriveID() string { return a.URL }

func (a *DirectURLAsset) IsLatest() bool {
	return a.Version == "" || a.Version == VersionLatest
}

// NoteAsset is never downloaded: it records a manual installation step
// that is surfaced to the user at the end of the run.
type NoteAsset struct {
	AssetCommon `yaml:",inline"`

	// Note is the text shown to the user.
	Note string `yaml:"note" json:"note" validate:"required"`
}

func (*NoteAsset) Type() string { return TypeNote }

func (a *NoteAsset) Common() *AssetCommon { return &a.AssetCommon }

func (a *NoteAsset) DeriveID() string { return a.Note }

func (a *NoteAsset) IsLatest() bool { return false }
