package gazelle

// Raw shapes of the ajax API responses. Text fields arrive HTML-entity
// encoded and are unescaped during conversion, never here.

type wireArtistLite struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type wireGroup struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Year      int    `json:"year"`
	WikiImage string `json:"wikiImage"`
	MusicInfo struct {
		Composers []wireArtistLite `json:"composers"`
		Artists   []wireArtistLite `json:"artists"`
		With      []wireArtistLite `json:"with"`
	} `json:"musicInfo"`
}

type wireTorrent struct {
	ID           int    `json:"id"`
	Media        string `json:"media"`
	Format       string `json:"format"`
	Encoding     string `json:"encoding"`
	Remastered   bool   `json:"remastered"`
	RemasterYear int    `json:"remasterYear"`
	Size         int64  `json:"size"`
	Seeders      int    `json:"seeders"`
	Leechers     int    `json:"leechers"`
	Snatched     int    `json:"snatched"`
	FreeTorrent  bool   `json:"freeTorrent"`
	// FileList packs "name{{{size}}}" entries joined by "|||".
	FileList string `json:"fileList"`
}

type wireTorrentGroup struct {
	Group    wireGroup     `json:"group"`
	Torrents []wireTorrent `json:"torrents"`
}

type wireBrowseResult struct {
	Pages   int `json:"pages"`
	Results []struct {
		GroupID   int    `json:"groupId"`
		GroupName string `json:"groupName"`
		Artist    string `json:"artist"`
		GroupYear int    `json:"groupYear"`
	} `json:"results"`
}

type wireArtist struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Image        string `json:"image"`
	TorrentGroup []struct {
		GroupID   int    `json:"groupId"`
		GroupName string `json:"groupName"`
		GroupYear int    `json:"groupYear"`
		Torrent   []struct {
			FileCount int `json:"fileCount"`
		} `json:"torrent"`
	} `json:"torrentgroup"`
}
