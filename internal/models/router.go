package models

// FileType classifies entries of the router's /file menu.
type FileType int

const (
	FileTypeOther FileType = iota
	FileTypeBackup
)

func (t FileType) String() string {
	if t == FileTypeBackup {
		return "backup"
	}
	return "other"
}

// ParseFileType maps the RouterOS "type" attribute to a FileType.
func ParseFileType(s string) FileType {
	if s == "backup" {
		return FileTypeBackup
	}
	return FileTypeOther
}

// BackupFile is a file entry reported by the router.
type BackupFile struct {
	Name         string
	Type         FileType
	Size         string // as reported, e.g. "34.2KiB"
	CreationTime string
}

// RestoreRequest holds the arguments of a /system/backup/load call.
type RestoreRequest struct {
	TargetName string
	Password   string
}

// DefaultRestoreRequest returns the request for the safe backup with no password.
func DefaultRestoreRequest() RestoreRequest {
	return RestoreRequest{TargetName: DefaultBackupName}
}

// ContainsBackup reports whether files holds an entry named exactly name.
func ContainsBackup(files []BackupFile, name string) bool {
	for _, f := range files {
		if f.Name == name {
			return true
		}
	}
	return false
}
