package engine

// Version forgebuild版本号（对外导出）
var Version = "0.3.0"
