package persona

// Defaults mirrors the vocabularies of the Synapse stress run: an impatient
// developer, a polite office clerk, and a terse Linux administrator.
func Defaults() []Persona {
	return []Persona{
		{
			ID:              "developer",
			RoleDescription: "你是一个急躁的程序员。",
			Topics:          []string{"python脚本", "C++源码", "配置文件", "接口文档", "测试用例"},
			Filenames:       []string{"main", "utils", "config", "test_api", "app", "schema"},
			Extensions:      []string{".py", ".cpp", ".json", ".yaml", ".js"},
			Paths:           []string{"project", "src", "dev", "code", "workspace"},
		},
		{
			ID:              "office",
			RoleDescription: "你是一个行政文员，不懂技术，说话很客气。",
			Topics:          []string{"会议记录", "周报", "待办事项", "简历", "通知"},
			Filenames:       []string{"2026会议记录", "张三简历", "1月周报", "todo", "notice"},
			Extensions:      []string{".txt", ".docx", ".md", ".xlsx"},
			Paths:           []string{"Desktop", "桌面", "Documents", "文档"},
		},
		{
			ID:              "sysadmin",
			RoleDescription: "你是一个Linux系统管理员，指令简练。",
			Topics:          []string{"系统日志", "数据库备份", "错误报告", "临时文件"},
			Filenames:       []string{"syslog", "db_backup", "error", "temp_check", "auth"},
			Extensions:      []string{".log", ".bak", ".tar.gz", ".sh"},
			Paths:           []string{"/var/log", "/tmp", "/etc/conf", "backup"},
		},
	}
}

// DefaultRegistry cannot fail: the built-in table is valid.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}
