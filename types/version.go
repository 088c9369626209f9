package types

// Version is the rosen release version. The CLI reports it and archived
// records carry it so replays can be matched to the tool that wrote them.
const Version = "0.4.0"

// RecordFormat is the version of the archive record layout.
const RecordFormat = "1"
